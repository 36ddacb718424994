package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Chat struct {
	ID        uuid.UUID `db:"id"`
	ChannelID string    `db:"channel_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type Game struct {
	ID          int64     `db:"id"`
	OwnerChatID uuid.UUID `db:"owner_chat_id"`
	Name        string    `db:"name"`
	StartAt     time.Time `db:"start_at"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

type Level struct {
	ID              uuid.UUID `db:"id"`
	GameID          int64     `db:"game_id"`
	Position        int       `db:"position"`
	Name            string    `db:"name"`
	Task            string    `db:"task"`
	DurationMinutes int       `db:"duration_minutes"`
	ToPass          int       `db:"to_pass"`
}

type Code struct {
	ID          uuid.UUID `db:"id"`
	LevelID     uuid.UUID `db:"level_id"`
	Position    int       `db:"position"`
	Fingerprint string    `db:"fingerprint"`
	Bonus       int       `db:"bonus"`
}

// Redemption is one row of the append-only ledger.
type Redemption struct {
	ID         string    `db:"id"`
	ChatID     uuid.UUID `db:"chat_id"`
	CodeID     uuid.UUID `db:"code_id"`
	RedeemedAt time.Time `db:"redeemed_at"`
}

// GameListing is a game row with the names of its levels in order, as shown
// by /list.
type GameListing struct {
	Game
	LevelNames pq.StringArray `db:"level_names"`
	Players    int            `db:"players"`
}
