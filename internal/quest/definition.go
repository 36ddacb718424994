package quest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameDefinition is the plaintext form of a game as produced by an importer.
type GameDefinition struct {
	Name   string
	Start  time.Time
	Levels []LevelDefinition
}

type LevelDefinition struct {
	Name     string
	Task     string
	Duration int
	ToPass   int
	Codes    []CodeDefinition
}

type CodeDefinition struct {
	Value string
	Bonus int
}

// BuildGame produces a fully formed pending game owned by ownerID. The game
// ID is left for the store to assign.
func (r *Registry) BuildGame(ownerID uuid.UUID, def GameDefinition) (*Game, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidGame)
	}
	g := &Game{
		OwnerChatID: ownerID,
		Name:        strings.TrimSpace(def.Name),
		Start:       def.Start,
		Status:      StatusPending,
		Levels:      make([]*Level, 0, len(def.Levels)),
	}
	for i, ld := range def.Levels {
		if ld.Duration < 0 {
			return nil, fmt.Errorf("%w: level %d has negative duration", ErrInvalidGame, i+1)
		}
		if ld.ToPass < 0 {
			return nil, fmt.Errorf("%w: level %d has negative to_pass", ErrInvalidGame, i+1)
		}
		l := &Level{
			ID:       uuid.New(),
			Position: i,
			Name:     ld.Name,
			Task:     ld.Task,
			Duration: ld.Duration,
			ToPass:   ld.ToPass,
		}
		codes, err := r.Codes(l.ID, ld.Codes)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i+1, err)
		}
		l.Codes = codes
		g.Levels = append(g.Levels, l)
	}
	return g, nil
}
