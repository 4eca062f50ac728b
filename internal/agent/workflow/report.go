package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/xhs-agent/internal/models"
)

// reportTopics caps the topic table of the daily report
const reportTopics = 10

// Report is the daily Markdown report: run summary, ranked topics,
// reply scores and the safety report
type Report struct {
	Date         time.Time
	Summary      *Summary
	Ranked       []*models.AnalysisRecord
	Sets         []*models.ReplySet
	Records      []*models.ReplyRecord
	SafetyReport string
}

// Render returns the report as Markdown
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily report %s\n\n", r.Date.Format("2006-01-02"))

	if s := r.Summary; s != nil {
		b.WriteString("## Run summary\n\n")
		fmt.Fprintf(&b, "- run: %s\n", s.RunID)
		fmt.Fprintf(&b, "- collected: %d\n- analyzed: %d\n- generated: %d\n", s.Collected, s.Analyzed, s.Generated)
		fmt.Fprintf(&b, "- sent: %d\n- staged: %d\n- skipped by gate: %d\n- failed: %d\n", s.Sent, s.Staged, s.SkippedByGate, s.Failed)
		fmt.Fprintf(&b, "- duration: %s\n\n", s.Duration.Round(time.Second))
	}

	if len(r.Ranked) > 0 {
		b.WriteString("## Top topics\n\n")
		b.WriteString("| # | Topic | Priority | Commercial | Urgency | Feasibility | Pain point |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for i, rec := range r.Ranked {
			if i == reportTopics {
				break
			}
			fmt.Fprintf(&b, "| %d | %s | %.2f | %.1f | %.1f | %.1f | %s |\n",
				i+1, cell(rec.Topic.Title), rec.Priority, rec.CommercialValue,
				rec.DemandUrgency, rec.DemandFeasibility, cell(rec.PrimaryPainPoint()))
		}
		b.WriteString("\n")
	}

	if len(r.Sets) > 0 {
		status := make(map[string]models.ReplyStatus, len(r.Records))
		for _, rec := range r.Records {
			status[rec.TopicURL] = rec.Status
		}

		b.WriteString("## Replies\n\n")
		b.WriteString("| Topic | Candidates | Best version | Score | Status |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, set := range r.Sets {
			version, score := "-", "-"
			if set.Best != nil {
				version = fmt.Sprintf("%d", set.Best.Version)
				score = fmt.Sprintf("%.1f", set.Best.OverallScore)
			}
			st := string(status[set.TopicURL])
			if st == "" {
				st = "-"
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n", cell(set.TopicTitle), len(set.Replies), version, score, st)
		}
		b.WriteString("\n")
	}

	if r.SafetyReport != "" {
		// demote the safety report headings one level
		for _, line := range strings.Split(strings.TrimRight(r.SafetyReport, "\n"), "\n") {
			if strings.HasPrefix(line, "#") {
				line = "#" + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteTo writes the report into dir and returns the file path
func (r Report) WriteTo(dir string) (string, error) {
	path := reportPath(dir, r.Date)
	if err := writeFile(path, r.Render()); err != nil {
		return "", err
	}
	return path, nil
}

// cell makes s safe inside a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40]) + "..."
	}
	return s
}
