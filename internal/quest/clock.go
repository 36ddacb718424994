package quest

import (
	"fmt"
	"time"
)

// Offset is the cumulative duration of the levels that precede l in g.
func Offset(g *Game, l *Level) time.Duration {
	var offset time.Duration
	for _, other := range g.Levels {
		if other.Position < l.Position {
			offset += other.Length()
		}
	}
	return offset
}

// Remaining returns the signed time left in level l at now. A negative value
// means the level window has already closed. It depends only on the level
// position, the preceding durations, the game start and now.
func Remaining(g *Game, l *Level, now time.Time) time.Duration {
	elapsed := now.Sub(g.Start) - Offset(g, l)
	return l.Length() - elapsed
}

// ActiveLevel returns the level whose window contains now.
func ActiveLevel(g *Game, now time.Time) (*Level, error) {
	if now.Before(g.Start) {
		return nil, ErrNoActiveLevel
	}
	windowStart := g.Start
	for _, l := range g.OrderedLevels() {
		windowEnd := windowStart.Add(l.Length())
		if now.Before(windowEnd) {
			return l, nil
		}
		windowStart = windowEnd
	}
	return nil, ErrNoActiveLevel
}

// FormatClock renders d as HH:MM:SS. Hours are not wrapped and negative
// durations keep their sign.
func FormatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
