package quest

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusRunning, StatusFinished:
		return st, nil
	}
	return "", fmt.Errorf("unknown game status %q", s)
}

// Chat is a player or organizer identity. ChannelID is the external
// messaging address the bot delivers to.
type Chat struct {
	ID        uuid.UUID
	ChannelID string
	Name      string
	CreatedAt time.Time
}

// Game is a time-boxed sequence of levels. Levels are owned by the game and
// are immutable once the game is created.
type Game struct {
	ID          int64
	OwnerChatID uuid.UUID
	Name        string
	Start       time.Time
	Status      Status
	Levels      []*Level
	CreatedAt   time.Time
}

type Level struct {
	ID       uuid.UUID
	GameID   int64
	Position int
	Name     string
	Task     string
	Duration int // minutes
	ToPass   int
	Codes    []*Code
}

// Code stores the fingerprint of a secret answer, never the plaintext.
type Code struct {
	ID          uuid.UUID
	LevelID     uuid.UUID
	Position    int
	Fingerprint string
	Bonus       int
}

type Redemption struct {
	ID     string
	ChatID uuid.UUID
	CodeID uuid.UUID
	At     time.Time
}

// Transition is a status change applied by the scheduler.
type Transition struct {
	Game *Game
	From Status
	To   Status
	At   time.Time
}

// TotalDuration is the sum of all level durations. A game without levels
// has a zero total duration.
func (g *Game) TotalDuration() time.Duration {
	var total time.Duration
	for _, l := range g.Levels {
		total += l.Length()
	}
	return total
}

// End is the instant the last level window closes.
func (g *Game) End() time.Time {
	return g.Start.Add(g.TotalDuration())
}

// OrderedLevels returns the levels sorted by position without touching
// g.Levels.
func (g *Game) OrderedLevels() []*Level {
	levels := slices.Clone(g.Levels)
	slices.SortStableFunc(levels, func(a, b *Level) int { return a.Position - b.Position })
	return levels
}

// LevelAt returns the level with the given 1-based display number.
func (g *Game) LevelAt(number int) (*Level, bool) {
	levels := g.OrderedLevels()
	if number < 1 || number > len(levels) {
		return nil, false
	}
	return levels[number-1], true
}

func (l *Level) Length() time.Duration {
	return time.Duration(l.Duration) * time.Minute
}

// MaxPoints is the bonus sum over every code of the level.
func (l *Level) MaxPoints() int {
	total := 0
	for _, c := range l.Codes {
		total += c.Bonus
	}
	return total
}
