package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by text output.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Bold          lipgloss.Style
	Muted         lipgloss.Style
	Key           lipgloss.Style
	ID            lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusWarning lipgloss.Style
}

// NewStyles creates styles bound to a lipgloss renderer, so colour is
// only emitted when that renderer's output supports it.
func NewStyles(r *lipgloss.Renderer) *Styles {
	green := lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	grey := lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}

	return &Styles{
		Header1:       r.NewStyle().Bold(true).Foreground(blue),
		Header2:       r.NewStyle().Bold(true),
		Bold:          r.NewStyle().Bold(true),
		Muted:         r.NewStyle().Foreground(grey),
		Key:           r.NewStyle().Foreground(grey),
		ID:            r.NewStyle().Foreground(blue),
		Success:       r.NewStyle().Foreground(green),
		Warning:       r.NewStyle().Foreground(yellow),
		Error:         r.NewStyle().Foreground(red).Bold(true),
		StatusSuccess: r.NewStyle().Foreground(green).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(red).SetString("✗"),
		StatusWarning: r.NewStyle().Foreground(yellow).SetString("!"),
	}
}
