package safety

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xhs-agent/internal/models"
)

var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityError,
	models.SeverityWarning,
	models.SeverityInfo,
}

// Report renders the Markdown safety report for the day of now
func (g *Gate) Report(now time.Time) string {
	summary := g.events.DailySummary(now)
	status := g.Status(now)

	var b strings.Builder
	fmt.Fprintf(&b, "# Safety report %s\n\n", summary.Date)
	fmt.Fprintf(&b, "Total events: %d\n\n", summary.Total)

	b.WriteString("## By severity\n\n")
	for _, sev := range severityOrder {
		if n := summary.BySeverity[sev]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", sev, n)
		}
	}

	b.WriteString("\n## By type\n\n")
	types := make([]string, 0, len(summary.ByType))
	for t := range summary.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if summary.ByType[types[i]] != summary.ByType[types[j]] {
			return summary.ByType[types[i]] > summary.ByType[types[j]]
		}
		return types[i] < types[j]
	})
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, summary.ByType[t])
	}

	b.WriteString("\n## System state\n\n")
	if status.Paused {
		fmt.Fprintf(&b, "- state: PAUSED (%s)\n", status.PauseReason)
	} else {
		b.WriteString("- state: active\n")
	}
	fmt.Fprintf(&b, "- replies today: %d/%d (target %d)\n", status.RepliesToday, status.DailyLimit, status.DailyTarget)
	fmt.Fprintf(&b, "- errors in the last %d minutes: %d\n", int(g.cfg.ErrorWindow.Minutes()), status.RecentErrors)
	if status.LastAction != nil {
		fmt.Fprintf(&b, "- last action: %s\n", status.LastAction.Format(time.DateTime))
	}
	return b.String()
}
