package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"questbot/internal/quest"
)

const startLayout = "2006-01-02 15:04"

func statusMessage(l *quest.Level, sum *quest.Summary) string {
	if sum.Complete {
		return fmt.Sprintf("Level complete! Closed %d codes for %d points.\nTime left: %s",
			sum.ClosedCount, sum.TotalPoints, quest.FormatClock(sum.TimeLeft))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Closed codes: %d of %d, points: %d\n", sum.ClosedCount, sum.TotalCodes, sum.TotalPoints)
	if l.ToPass > 0 {
		fmt.Fprintf(&sb, "Codes left to pass: %d\n", max(sum.ToPassLeft, 0))
	}
	if sum.Remaining != "" {
		fmt.Fprintf(&sb, "Open codes: %s\n", sum.Remaining)
	}
	fmt.Fprintf(&sb, "Time left: %s", quest.FormatClock(sum.TimeLeft))
	return sb.String()
}

func taskMessage(number int, l *quest.Level, left time.Duration) string {
	name := l.Name
	if name == "" {
		name = "Level " + strconv.Itoa(number)
	}
	task := strings.TrimSpace(l.Task)
	if task == "" {
		task = "(no task)"
	}
	return fmt.Sprintf("**%d. %s**\n%s\n\nTime left: %s", number, name, task, quest.FormatClock(left))
}

func codeMessage(res *quest.SubmitResult) string {
	head := "Code accepted!"
	if res.Code.Bonus != 0 {
		head = fmt.Sprintf("Code accepted! +%d", res.Code.Bonus)
	}
	return head + "\n" + statusMessage(res.Level, res.Summary)
}

func infoMessage(g *quest.Game, now time.Time, loc *time.Location) string {
	levels := g.OrderedLevels()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Game #%d %q\n", g.ID, g.Name)
	fmt.Fprintf(&sb, "Started: %s\n", g.Start.In(loc).Format(startLayout))
	fmt.Fprintf(&sb, "Ends: %s\n", g.End().In(loc).Format(startLayout))
	if l, err := quest.ActiveLevel(g, now); err == nil {
		for n, other := range levels {
			if other.ID == l.ID {
				fmt.Fprintf(&sb, "Level %d of %d, time left on level: %s\n", n+1, len(levels), quest.FormatClock(quest.Remaining(g, l, now)))
				break
			}
		}
	}
	fmt.Fprintf(&sb, "Time left in game: %s", quest.FormatClock(g.End().Sub(now)))
	return sb.String()
}

func statsMessage(stats *quest.GameStats) string {
	rows := make([][]string, 0, len(stats.Levels))
	for _, ls := range stats.Levels {
		rows = append(rows, []string{
			strconv.Itoa(ls.Number),
			truncateString(ls.Level.Name, 24),
			fmt.Sprintf("%d/%d", ls.Closed, len(ls.Level.Codes)),
			fmt.Sprintf("%d/%d", ls.Points, ls.Level.MaxPoints()),
		})
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Game #%d %q\n", stats.Game.ID, stats.Game.Name)
	sb.WriteString(formatTable([]string{"#", "LEVEL", "CODES", "POINTS"}, rows))
	fmt.Fprintf(&sb, "\nTotal: %d codes, %d points", stats.Closed, stats.Points)
	return sb.String()
}
