package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameFinder resolves games for the engine.
type GameFinder interface {
	RunningGamesForChat(ctx context.Context, chatID uuid.UUID) ([]*Game, error)
}

type Options struct {
	Duplicates    DuplicatePolicy
	Completion    CompletionRule
	Fingerprinter Fingerprinter
}

// Engine ties the registry, ledger, clock and reporter together for one
// player action at a time.
type Engine struct {
	games    GameFinder
	ledger   Ledger
	registry *Registry
	reporter *Reporter
	policy   DuplicatePolicy
}

func NewEngine(games GameFinder, ledger Ledger, opts Options) *Engine {
	return &Engine{
		games:    games,
		ledger:   ledger,
		registry: NewRegistry(opts.Fingerprinter),
		reporter: NewReporter(ledger, opts.Completion),
		policy:   opts.Duplicates,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

// ResolveRunningGame returns the single running game chatID takes part in.
// Two running games at once are reported as ErrAmbiguousGame rather than
// picking one.
func (e *Engine) ResolveRunningGame(ctx context.Context, chatID uuid.UUID) (*Game, error) {
	games, err := e.games.RunningGamesForChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("running games: %w", err)
	}
	switch len(games) {
	case 0:
		return nil, ErrNoActiveGame
	case 1:
		return games[0], nil
	default:
		return nil, fmt.Errorf("%w: %d games", ErrAmbiguousGame, len(games))
	}
}

type Position struct {
	Game  *Game
	Level *Level
	// Number is the 1-based level number.
	Number int
}

// Locate finds the running game of chatID and its level open at now.
func (e *Engine) Locate(ctx context.Context, chatID uuid.UUID, now time.Time) (*Position, error) {
	g, err := e.ResolveRunningGame(ctx, chatID)
	if err != nil {
		return nil, err
	}
	l, err := ActiveLevel(g, now)
	if err != nil {
		return &Position{Game: g}, err
	}
	return &Position{Game: g, Level: l, Number: levelNumber(g, l)}, nil
}

type SubmitResult struct {
	Position
	Code       *Code
	Redemption *Redemption
	Summary    *Summary
}

// Submit validates plaintext against the level open at `at` and records the
// redemption. An unknown code returns ErrCodeNotFound and writes nothing.
func (e *Engine) Submit(ctx context.Context, chatID uuid.UUID, plaintext string, at time.Time) (*SubmitResult, error) {
	pos, err := e.Locate(ctx, chatID, at)
	if err != nil {
		return nil, err
	}
	code, err := e.registry.Validate(pos.Level, plaintext)
	if err != nil {
		return nil, err
	}
	rec, err := e.ledger.Record(ctx, chatID, code, at, e.policy)
	if err != nil {
		if errors.Is(err, ErrAlreadyRedeemed) {
			return nil, err
		}
		return nil, fmt.Errorf("record redemption: %w", err)
	}
	sum, err := e.reporter.Summarize(ctx, chatID, pos.Game, pos.Level, at)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Position: *pos, Code: code, Redemption: rec, Summary: sum}, nil
}

type StatusReport struct {
	Position
	Summary *Summary
}

// Status summarizes the progress of chatID on its current level.
func (e *Engine) Status(ctx context.Context, chatID uuid.UUID, now time.Time) (*StatusReport, error) {
	pos, err := e.Locate(ctx, chatID, now)
	if err != nil {
		return nil, err
	}
	sum, err := e.reporter.Summarize(ctx, chatID, pos.Game, pos.Level, now)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Position: *pos, Summary: sum}, nil
}

type LevelStat struct {
	Level  *Level
	Number int
	Closed int
	Points int
}

type GameStats struct {
	Game   *Game
	Levels []LevelStat
	Closed int
	Points int
}

// Stats totals the closed codes and points of chatID in every level of g.
func (e *Engine) Stats(ctx context.Context, chatID uuid.UUID, g *Game) (*GameStats, error) {
	stats := &GameStats{Game: g}
	for i, l := range g.OrderedLevels() {
		closed, err := e.ledger.ClosedCodes(ctx, chatID, l)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i+1, err)
		}
		ls := LevelStat{Level: l, Number: i + 1, Closed: len(closed), Points: closed.Points()}
		stats.Levels = append(stats.Levels, ls)
		stats.Closed += ls.Closed
		stats.Points += ls.Points
	}
	return stats, nil
}

func levelNumber(g *Game, l *Level) int {
	for i, other := range g.OrderedLevels() {
		if other.ID == l.ID {
			return i + 1
		}
	}
	return 0
}
