package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/davarch/ci-dash/internal/domain"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	runningColor = lipgloss.Color("#3B82F6")
	mutedColor   = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	headerStatsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#E0E0E0")).
				Background(primaryColor).
				Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	rowSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#3B3B3B")).
				Padding(0, 1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(1, 2)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	favoriteStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	bannerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	bannerErrorStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(errorColor).
				Padding(0, 1)

	searchStyle = lipgloss.NewStyle().
			Padding(0, 1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 3)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
)

// Colors effects blend between. The row background is the selection-free
// background the flashes fade into.
var (
	rowBackground = mustHex("#1F1F1F")
	textColor     = mustHex("#E0E0E0")
	flashSuccess  = mustHex("#10B981")
	flashFailure  = mustHex("#EF4444")
	accentColor   = mustHex("#7C3AED")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusSuccess:
		return lipgloss.NewStyle().Foreground(successColor)
	case domain.StatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor)
	case domain.StatusRunning:
		return lipgloss.NewStyle().Foreground(runningColor)
	case domain.StatusPending, domain.StatusCreated:
		return lipgloss.NewStyle().Foreground(warningColor)
	default:
		return mutedStyle
	}
}

func statusGlyph(s domain.Status, spin string) string {
	switch s {
	case domain.StatusSuccess:
		return "✔"
	case domain.StatusFailed:
		return "✘"
	case domain.StatusRunning:
		return spin
	case domain.StatusPending:
		return "●"
	case domain.StatusCreated:
		return "○"
	case domain.StatusCanceled:
		return "⊘"
	case domain.StatusSkipped:
		return "»"
	default:
		return " "
	}
}
