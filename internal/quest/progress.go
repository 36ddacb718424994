package quest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompletionRule decides when a level counts as done for a chat.
type CompletionRule int

const (
	CompleteWhenAllClosed CompletionRule = iota
	CompleteAtToPass
)

func ParseCompletionRule(s string) (CompletionRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return CompleteWhenAllClosed, nil
	case "to_pass":
		return CompleteAtToPass, nil
	}
	return 0, fmt.Errorf("unknown completion rule %q", s)
}

type Summary struct {
	TotalCodes  int
	ClosedCount int
	TotalPoints int
	// Remaining lists the open code positions, compacted.
	Remaining  string
	ToPassLeft int
	TimeLeft   time.Duration
	Complete   bool
}

type Reporter struct {
	ledger Ledger
	rule   CompletionRule
}

func NewReporter(ledger Ledger, rule CompletionRule) *Reporter {
	return &Reporter{ledger: ledger, rule: rule}
}

func (r *Reporter) Summarize(ctx context.Context, chatID uuid.UUID, g *Game, l *Level, now time.Time) (*Summary, error) {
	closed, err := r.ledger.ClosedCodes(ctx, chatID, l)
	if err != nil {
		return nil, fmt.Errorf("closed codes: %w", err)
	}
	open := OpenPositions(l.Codes, closed)
	s := &Summary{
		TotalCodes:  len(l.Codes),
		ClosedCount: len(closed),
		TotalPoints: closed.Points(),
		Remaining:   CompactRanges(open),
		ToPassLeft:  l.ToPass - len(closed),
		TimeLeft:    Remaining(g, l, now),
	}
	switch r.rule {
	case CompleteAtToPass:
		s.Complete = len(open) == 0 || (l.ToPass > 0 && s.ClosedCount >= l.ToPass)
	default:
		s.Complete = len(open) == 0
	}
	return s, nil
}

// OpenPositions returns the 1-based display positions of codes not in closed.
func OpenPositions(codes []*Code, closed CodeSet) []int {
	open := make([]int, 0, len(codes))
	for i, c := range codes {
		if !closed.Has(c) {
			open = append(open, i+1)
		}
	}
	return open
}

// CompactRanges groups positions into maximal runs of consecutive numbers.
// Runs of three or more render as "min-max", shorter runs as a comma list.
func CompactRanges(positions []int) string {
	if len(positions) == 0 {
		return ""
	}
	sorted := slices.Clone(positions)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	parts := make([]string, 0, len(sorted))
	runStart := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i] == sorted[i-1]+1 {
			continue
		}
		parts = append(parts, compactRun(sorted[runStart:i]))
		runStart = i
	}
	return strings.Join(parts, ",")
}

func compactRun(run []int) string {
	if len(run) >= 3 {
		return fmt.Sprintf("%d-%d", run[0], run[len(run)-1])
	}
	items := make([]string, len(run))
	for i, n := range run {
		items[i] = strconv.Itoa(n)
	}
	return strings.Join(items, ",")
}
