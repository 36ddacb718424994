package quest

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// DuplicatePolicy decides whether a chat may redeem the same code twice.
type DuplicatePolicy int

const (
	// AllowDuplicates appends every redemption, matching historic behavior.
	AllowDuplicates DuplicatePolicy = iota
	RejectDuplicates
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return AllowDuplicates, nil
	case "reject":
		return RejectDuplicates, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q", s)
}

func (p DuplicatePolicy) String() string {
	if p == RejectDuplicates {
		return "reject"
	}
	return "allow"
}

// CodeSet is a set of codes keyed by id.
type CodeSet map[uuid.UUID]*Code

func (s CodeSet) Has(c *Code) bool {
	_, ok := s[c.ID]
	return ok
}

func (s CodeSet) Points() int {
	total := 0
	for _, c := range s {
		total += c.Bonus
	}
	return total
}

// Ledger is the append-only record of redemptions. Record must either fully
// append or not append at all.
type Ledger interface {
	Record(ctx context.Context, chatID uuid.UUID, code *Code, at time.Time, policy DuplicatePolicy) (*Redemption, error)
	ClosedCodes(ctx context.Context, chatID uuid.UUID, level *Level) (CodeSet, error)
}

var (
	redemptionEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	redemptionEntropyMu sync.Mutex
)

// NewRedemptionID returns a ULID stamped with the submission time so ledger
// ids sort by when codes were sent.
func NewRedemptionID(at time.Time) string {
	redemptionEntropyMu.Lock()
	defer redemptionEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), redemptionEntropy).String()
}

type MemoryLedger struct {
	mu      sync.Mutex
	records []Redemption
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Record(_ context.Context, chatID uuid.UUID, code *Code, at time.Time, policy DuplicatePolicy) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if policy == RejectDuplicates {
		for _, r := range m.records {
			if r.ChatID == chatID && r.CodeID == code.ID {
				return nil, ErrAlreadyRedeemed
			}
		}
	}
	rec := Redemption{
		ID:     NewRedemptionID(at),
		ChatID: chatID,
		CodeID: code.ID,
		At:     at,
	}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *MemoryLedger) ClosedCodes(_ context.Context, chatID uuid.UUID, level *Level) (CodeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	redeemed := make(map[uuid.UUID]bool)
	for _, r := range m.records {
		if r.ChatID == chatID {
			redeemed[r.CodeID] = true
		}
	}
	closed := make(CodeSet)
	for _, c := range level.Codes {
		if redeemed[c.ID] {
			closed[c.ID] = c
		}
	}
	return closed, nil
}

// Records returns a copy of every redemption of chatID in append order.
func (m *MemoryLedger) Records(chatID uuid.UUID) []Redemption {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Redemption
	for _, r := range m.records {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out
}
