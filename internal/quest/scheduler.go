package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusStore is what the scheduler needs from storage. SetStatus is a
// compare-and-set and reports whether the row was changed.
type StatusStore interface {
	GamesByStatus(ctx context.Context, status Status) ([]*Game, error)
	SetStatus(ctx context.Context, gameID int64, from, to Status) (bool, error)
}

// Locker guards a poll when several processes share one database.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

const schedulerLockKey = "questbot:scheduler"

type Scheduler struct {
	store StatusStore

	// OnTransition, when set, is called once per applied transition.
	OnTransition func(Transition)
	Locker       Locker
}

func NewScheduler(store StatusStore) *Scheduler {
	return &Scheduler{store: store}
}

// ActivateDueGames moves every pending game whose start is not after now to
// running.
func (s *Scheduler) ActivateDueGames(ctx context.Context, now time.Time) ([]Transition, error) {
	games, err := s.store.GamesByStatus(ctx, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending games: %w", err)
	}
	return s.advance(ctx, games, StatusPending, StatusRunning, now, func(g *Game) bool {
		return !g.Start.After(now)
	})
}

// CompleteExpiredGames moves every running game whose last level window has
// closed to finished.
func (s *Scheduler) CompleteExpiredGames(ctx context.Context, now time.Time) ([]Transition, error) {
	games, err := s.store.GamesByStatus(ctx, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running games: %w", err)
	}
	return s.advance(ctx, games, StatusRunning, StatusFinished, now, func(g *Game) bool {
		return !g.End().After(now)
	})
}

// Poll activates before it completes, so a game already due for both passes
// through running in the same call.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) ([]Transition, error) {
	started, errStart := s.ActivateDueGames(ctx, now)
	finished, errFinish := s.CompleteExpiredGames(ctx, now)
	return append(started, finished...), errors.Join(errStart, errFinish)
}

func (s *Scheduler) advance(ctx context.Context, games []*Game, from, to Status, now time.Time, due func(*Game) bool) ([]Transition, error) {
	var (
		out  []Transition
		errs []error
	)
	for _, g := range games {
		if !due(g) {
			continue
		}
		ok, err := s.store.SetStatus(ctx, g.ID, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("game %d %s->%s: %w", g.ID, from, to, err))
			continue
		}
		if !ok {
			// another poller got there first
			continue
		}
		g.Status = to
		t := Transition{Game: g, From: from, To: to, At: now}
		log.Info().Int64("game", g.ID).Str("from", string(from)).Str("to", string(to)).Msg("game status changed")
		if s.OnTransition != nil {
			s.OnTransition(t)
		}
		out = append(out, t)
	}
	return out, errors.Join(errs...)
}

// Start polls on a fixed interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.pollOnce(ctx, now, interval)
			}
		}
	}()
}

func (s *Scheduler) pollOnce(ctx context.Context, now time.Time, interval time.Duration) {
	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx, schedulerLockKey, interval)
		if err != nil {
			log.Error().Err(err).Msg("scheduler lock failed")
			return
		}
		if !ok {
			log.Debug().Msg("scheduler lock held elsewhere")
			return
		}
		defer unlock()
	}
	if _, err := s.Poll(ctx, now); err != nil {
		log.Error().Err(err).Msg("scheduler poll failed")
	}
}
