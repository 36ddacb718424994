package quest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps games and participation in process memory. Games are
// handed out as shallow copies so status changes never race with readers;
// levels and codes are immutable and shared.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	games   map[int64]*Game
	players map[int64]map[uuid.UUID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:   make(map[int64]*Game),
		players: make(map[int64]map[uuid.UUID]bool),
	}
}

func (m *MemoryStore) CreateGame(_ context.Context, g *Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	g.ID = m.nextID
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.Status == "" {
		g.Status = StatusPending
	}
	for _, l := range g.Levels {
		l.GameID = g.ID
	}
	stored := *g
	m.games[g.ID] = &stored
	return nil
}

func (m *MemoryStore) GetGame(_ context.Context, id int64) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStore) DeleteGame(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return ErrGameNotFound
	}
	delete(m.games, id)
	delete(m.players, id)
	return nil
}

func (m *MemoryStore) JoinGame(_ context.Context, chatID uuid.UUID, gameID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[gameID]; !ok {
		return ErrGameNotFound
	}
	if m.players[gameID] == nil {
		m.players[gameID] = make(map[uuid.UUID]bool)
	}
	m.players[gameID][chatID] = true
	return nil
}

// SetStart moves the start of a game regardless of its status.
func (m *MemoryStore) SetStart(_ context.Context, id int64, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return ErrGameNotFound
	}
	cp := *g
	cp.Start = start
	m.games[id] = &cp
	return nil
}

func (m *MemoryStore) GamesByStatus(_ context.Context, status Status) ([]*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Game
	for _, g := range m.games {
		if g.Status == status {
			cp := *g
			out = append(out, &cp)
		}
	}
	sortGames(out)
	return out, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id int64, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return false, ErrGameNotFound
	}
	if g.Status != from {
		return false, nil
	}
	g.Status = to
	return true, nil
}

func (m *MemoryStore) RunningGamesForChat(_ context.Context, chatID uuid.UUID) ([]*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Game
	for id, g := range m.games {
		if g.Status == StatusRunning && m.players[id][chatID] {
			cp := *g
			out = append(out, &cp)
		}
	}
	sortGames(out)
	return out, nil
}

func sortGames(games []*Game) {
	slices.SortFunc(games, func(a, b *Game) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
