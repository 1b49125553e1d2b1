package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

const barWidth = 30

var (
	accent = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

// Terminal draws a bordered panel with a progress bar and one line per slot.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	title     lipgloss.Style
	panel     lipgloss.Style
	filled    lipgloss.Style
	empty     lipgloss.Style
	completed lipgloss.Style
	active    lipgloss.Style
	pending   lipgloss.Style
	warn      lipgloss.Style
}

// NewTerminal builds a Terminal writing to out. Color support is detected
// from out, so a non-TTY writer gets unstyled text.
func NewTerminal(out io.Writer, subject string) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out:       out,
		title:     r.NewStyle().Foreground(accent).Bold(true).SetString("Tracking " + subject),
		panel:     r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(faint).Padding(0, 1),
		filled:    r.NewStyle().Foreground(green),
		empty:     r.NewStyle().Foreground(faint),
		completed: r.NewStyle().Foreground(green),
		active:    r.NewStyle().Foreground(accent).Bold(true),
		pending:   r.NewStyle().Foreground(dim),
		warn:      r.NewStyle().Foreground(yellow).Bold(true),
	}
}

// Render draws the panel for s.
func (t *Terminal) Render(s progress.Snapshot) {
	v := BuildView(s)

	var sb strings.Builder
	sb.WriteString(t.title.String())
	sb.WriteString("\n")
	sb.WriteString(t.bar(v.Percent))
	sb.WriteString(fmt.Sprintf(" %3.0f%%\n", v.Percent))
	for _, slot := range v.Slots {
		style := t.pending
		switch slot.Status {
		case progress.StatusCompleted:
			style = t.completed
		case progress.StatusActive:
			style = t.active
		}
		sb.WriteString(style.Render(slot.Icon + " " + slot.Message))
		sb.WriteString("\n")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.panel.Render(strings.TrimRight(sb.String(), "\n")))
}

// ShowError prints a warning banner.
func (t *Terminal) ShowError(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.warn.Render("⚠ "+message))
}

func (t *Terminal) bar(percent float64) string {
	var n int
	switch {
	case math.IsNaN(percent) || percent <= 0:
	case percent >= 100:
		n = barWidth
	default:
		n = int(percent / 100 * barWidth)
	}
	return t.filled.Render(strings.Repeat("█", n)) + t.empty.Render(strings.Repeat("░", barWidth-n))
}
