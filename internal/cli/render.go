package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rshade/forecastrun/internal/driver"
)

// reportStyles holds the summary styles bound to one output renderer.
type reportStyles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		heading: r.NewStyle().Bold(true),
		label:   r.NewStyle().Width(10),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// renderReport writes a human-readable run summary. Color is only emitted
// when w is a terminal.
func renderReport(w io.Writer, report *driver.Report, showStatuses bool) {
	s := newReportStyles(w)
	var b strings.Builder

	b.WriteString(s.heading.Render("Run summary") + "\n")
	fmt.Fprintf(&b, "%s%s\n", s.label.Render("Trace:"), report.TraceID)
	fmt.Fprintf(&b, "%s%d\n", s.label.Render("Workers:"), report.Workers)
	fmt.Fprintf(&b, "%s%d (%d rows)\n", s.label.Render("Batches:"), len(report.Batches), report.Progress.TotalRows)

	failed := fmt.Sprintf("%d failed", report.Failed)
	if report.Failed > 0 {
		failed = s.failed.Render(failed)
	}
	fmt.Fprintf(&b, "%s%s, %s\n", s.label.Render("Rows:"),
		s.ok.Render(fmt.Sprintf("%d processed", report.Processed)), failed)

	b.WriteString(s.heading.Render("Archives") + "\n")
	for _, br := range report.Batches {
		arc := br.Result.Archive
		note := ""
		if br.Result.Aborted {
			note = s.failed.Render(" (batch aborted early)")
		}
		fmt.Fprintf(&b, "  %s (%d artifacts)%s\n", arc.Path, len(arc.Entries), note)
	}

	if report.Failed > 0 {
		b.WriteString(s.heading.Render("Failures") + "\n")
		for _, br := range report.Batches {
			for _, row := range br.Result.Failed() {
				fmt.Fprintf(&b, "  batch %d row %d: %v\n", br.Index, row.Index, row.Err)
			}
		}
	}

	if showStatuses {
		b.WriteString(s.heading.Render("Statuses") + "\n")
		for _, br := range report.Batches {
			for _, status := range br.Result.Statuses {
				fmt.Fprintf(&b, "  %s\n", status)
			}
		}
	}

	_, _ = io.WriteString(w, b.String())
}
