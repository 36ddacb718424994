package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questbot/internal/config"
	"questbot/internal/db/models"
	"questbot/internal/quest"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	*pgxpool.Pool
}

func New(cfg config.DatabaseConfig) (*DB, error) {
	return Open(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
}

// Open connects to dsn with the given pool bounds.
func Open(dsn string, maxConns, minConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	return &DB{pool}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// GetOrCreateChat returns the chat bound to a Discord channel, creating it
// on first contact. The display name is refreshed when it changed.
func (db *DB) GetOrCreateChat(ctx context.Context, channelID, name string) (*quest.Chat, error) {
	query := `
		INSERT INTO chats (id, channel_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, channel_id, name, created_at`

	row := models.Chat{}
	err := db.QueryRow(ctx, query, uuid.New().String(), channelID, name, time.Now()).Scan(
		&row.ID,
		&row.ChannelID,
		&row.Name,
		&row.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error upserting chat: %w", err)
	}
	return chatFromRow(row), nil
}

func (db *DB) GetChat(ctx context.Context, id uuid.UUID) (*quest.Chat, error) {
	query := `
		SELECT id, channel_id, name, created_at
		FROM chats
		WHERE id = $1`

	row := models.Chat{}
	err := db.QueryRow(ctx, query, id.String()).Scan(
		&row.ID,
		&row.ChannelID,
		&row.Name,
		&row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chatFromRow(row), nil
}

// Participants lists the chats that joined gameID.
func (db *DB) Participants(ctx context.Context, gameID int64) ([]*quest.Chat, error) {
	query := `
		SELECT c.id, c.channel_id, c.name, c.created_at
		FROM game_players gp
		JOIN chats c ON c.id = gp.chat_id
		WHERE gp.game_id = $1
		ORDER BY gp.joined_at`

	rows, err := db.Query(ctx, query, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*quest.Chat
	for rows.Next() {
		row := models.Chat{}
		if err := rows.Scan(&row.ID, &row.ChannelID, &row.Name, &row.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, chatFromRow(row))
	}
	return chats, rows.Err()
}

// JoinGame records that chatID plays gameID. Joining twice is a no-op.
func (db *DB) JoinGame(ctx context.Context, chatID uuid.UUID, gameID int64) error {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, gameID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return quest.ErrGameNotFound
	}

	query := `
		INSERT INTO game_players (game_id, chat_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id, chat_id) DO NOTHING`

	_, err = db.Exec(ctx, query, gameID, chatID.String(), time.Now())
	return err
}

func chatFromRow(row models.Chat) *quest.Chat {
	return &quest.Chat{
		ID:        row.ID,
		ChannelID: row.ChannelID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
	}
}
