package quest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryLedgerAllowsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	l := levelWithCodes(2)
	chat := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := m.Record(ctx, chat, l.Codes[0], t0.Add(time.Duration(i)*time.Second), AllowDuplicates); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if got := len(m.Records(chat)); got != 2 {
		t.Fatalf("records = %d, want 2", got)
	}
	closed, err := m.ClosedCodes(ctx, chat, l)
	if err != nil {
		t.Fatalf("ClosedCodes: %v", err)
	}
	if len(closed) != 1 || !closed.Has(l.Codes[0]) {
		t.Fatalf("closed = %v", closed)
	}
}

func TestMemoryLedgerRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	l := levelWithCodes(1)
	chat := uuid.New()

	if _, err := m.Record(ctx, chat, l.Codes[0], t0, RejectDuplicates); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if _, err := m.Record(ctx, chat, l.Codes[0], t0, RejectDuplicates); !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("second Record: err = %v, want ErrAlreadyRedeemed", err)
	}
	other := uuid.New()
	if _, err := m.Record(ctx, other, l.Codes[0], t0, RejectDuplicates); err != nil {
		t.Fatalf("other chat Record: %v", err)
	}
	if got := len(m.Records(chat)); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
}

func TestMemoryLedgerScopesByChatAndLevel(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	a, b := levelWithCodes(2), levelWithCodes(2)
	chat := uuid.New()
	if _, err := m.Record(ctx, chat, b.Codes[1], t0, AllowDuplicates); err != nil {
		t.Fatalf("Record: %v", err)
	}
	closed, _ := m.ClosedCodes(ctx, chat, a)
	if len(closed) != 0 {
		t.Fatalf("level a closed = %v, want none", closed)
	}
	closed, _ = m.ClosedCodes(ctx, uuid.New(), b)
	if len(closed) != 0 {
		t.Fatalf("other chat closed = %v, want none", closed)
	}
}

func TestMemoryLedgerConcurrentRejectAppendsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	l := levelWithCodes(1)
	chat := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Record(ctx, chat, l.Codes[0], t0, RejectDuplicates)
		}()
	}
	wg.Wait()
	if got := len(m.Records(chat)); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
}

func TestRedemptionIDsSortByTime(t *testing.T) {
	a := NewRedemptionID(t0)
	b := NewRedemptionID(t0.Add(time.Second))
	if !(a < b) {
		t.Fatalf("ids out of order: %s >= %s", a, b)
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	if p, err := ParseDuplicatePolicy(""); err != nil || p != AllowDuplicates {
		t.Fatalf("default: %v, %v", p, err)
	}
	if p, err := ParseDuplicatePolicy("Reject"); err != nil || p != RejectDuplicates {
		t.Fatalf("reject: %v, %v", p, err)
	}
	if _, err := ParseDuplicatePolicy("maybe"); err == nil {
		t.Fatal("expected error")
	}
}
