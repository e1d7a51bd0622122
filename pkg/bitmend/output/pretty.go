package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))

	if len(r.Errors) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatErrors(r))
	}

	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)))

	scanned := fmt.Sprintf("%s files, %s in %s",
		humanize.Comma(r.Stats.FilesScanned),
		humanize.IBytes(uint64(r.Stats.BytesHashed)),
		formatDuration(r.Stats.Duration.Seconds()))
	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Scanned:"), ValueStyle.Render(scanned)))

	var counts []string
	for _, name := range []string{"new", "unchanged", "updated", "corrupt"} {
		n := r.Counts[name]
		counts = append(counts, outcomeStyle(name).Render(fmt.Sprintf("%s %d", name, n)))
	}
	lines = append(lines, strings.Join(counts, "  "))

	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Scan interrupted"))
	}

	content := strings.Join(lines, "\n")
	if r.Corrupted() > 0 {
		return AlertBox.Render(content)
	}
	return HeaderBox.Render(content)
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Files) == 0 {
		if r.Corrupted() == 0 {
			return SuccessStyle.Render("  No corruption detected") + "\n"
		}
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s%s\n",
		TableHeaderStyle.Render(padRight("OUTCOME", 10)),
		TableHeaderStyle.Render("PATH")))

	for _, file := range r.Files {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			outcomeStyle(file.Outcome).Render(padRight(file.Outcome, 10)),
			PathStyle.Render(file.Path)))
	}

	return sb.String()
}

func (f *PrettyFormatter) formatErrors(r *Result) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("%d errors:", len(r.Errors))))
	sb.WriteString("\n")
	for _, e := range r.Errors {
		sb.WriteString(WarningStyle.Render("  " + e.Path + ": " + e.Error))
		sb.WriteString("\n")
	}

	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats seconds in a human-friendly way.
func formatDuration(sec float64) string {
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
