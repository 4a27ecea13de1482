package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Writes a human-readable summary of the report.
//
// When styled is false the output is plain text, suitable for files.
func Render(w io.Writer, r *Report, styled bool) error {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder

	status := paint(passStyle, string(r.Status))
	if !r.Passed() {
		status = paint(failStyle, string(r.Status))
	}
	duration := time.Duration(r.DurationMs) * time.Millisecond
	fmt.Fprintf(&b, "%s %s %s\n", paint(headingStyle, "Verification"), status,
		paint(dimStyle, fmt.Sprintf("(%s, build %s, %s)", r.Recipe, shortID(r.BuildID), duration)))

	if t := r.Tests; t != nil {
		fmt.Fprintf(&b, "%-10s%d total, %d passed, %d failed, %d errors, %d skipped\n",
			paint(headingStyle, "Tests"), t.Total, t.Passed, t.Failed, t.Errors, t.Skipped)
	} else {
		fmt.Fprintf(&b, "%-10s%s\n", paint(headingStyle, "Tests"), paint(dimStyle, "no unit report"))
	}

	if c := r.Coverage; c != nil {
		fmt.Fprintf(&b, "%-10s%.2f%% (%d/%d statements)\n",
			paint(headingStyle, "Coverage"), c.Percent, c.Covered, c.Statements)
		width := 0
		for _, u := range c.Units {
			width = max(width, len(u.Path))
		}
		for _, u := range c.Units {
			fmt.Fprintf(&b, "  %-*s %7.2f%%\n", width, u.Path, u.Percent)
		}
	} else {
		fmt.Fprintf(&b, "%-10s%s\n", paint(headingStyle, "Coverage"), paint(dimStyle, "no coverage report"))
	}

	if r.Tests != nil && len(r.Tests.Failing) > 0 {
		b.WriteString(paint(headingStyle, "Failing") + "\n")
		for _, name := range r.Tests.Failing {
			fmt.Fprintf(&b, "  %s\n", paint(failStyle, name))
		}
	}

	if len(r.Reasons) > 0 {
		b.WriteString(paint(headingStyle, "Reasons") + "\n")
		for _, reason := range r.Reasons {
			fmt.Fprintf(&b, "  - %s\n", reason)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
