package introspect

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00E5FF"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B388FF"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#64FFDA"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8A80")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// View renders the investigate-mode viewer.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("yamy investigate"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("state:  "))
	b.WriteString(m.Status.State)
	b.WriteString("  ")
	b.WriteString(labelStyle.Render("keymap: "))
	b.WriteString(m.Status.CurrentKeymap)
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("latency avg/p99/max (ns): "))
	b.WriteString(fmt.Sprintf("%d / %d / %d", m.Metrics.LatencyAvgNs, m.Metrics.LatencyP99Ns, m.Metrics.LatencyMaxNs))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("keys/sec: "))
	b.WriteString(fmt.Sprintf("%.1f", m.Metrics.KeysPerSecond))
	b.WriteString("\n\n")

	if m.streamEnded {
		b.WriteString(errStyle.Render("investigate stream closed by daemon"))
		b.WriteString("\n\n")
	} else {
		b.WriteString(okStyle.Render("streaming key events..."))
		b.WriteString("\n\n")
	}

	if m.LastErr != nil {
		b.WriteString(errStyle.Render(m.LastErr.Error()))
		b.WriteString("\n\n")
	}

	if len(m.EventLines) == 0 {
		b.WriteString(dimStyle.Render("(no key events yet)"))
	} else {
		for _, line := range m.EventLines {
			b.WriteString(dimStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("press q to quit"))

	return b.String()
}
