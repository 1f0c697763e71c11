package tui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeneeth/neethos-chat/internal/theme"
)

// Styles are the lipgloss styles derived from a theme palette.
type Styles struct {
	Header    lipgloss.Style
	Muted     lipgloss.Style
	UserLabel lipgloss.Style
	UserText  lipgloss.Style
	BotLabel  lipgloss.Style
	BotText   lipgloss.Style
	Spinner   lipgloss.Style
	Error     lipgloss.Style
	Footer    lipgloss.Style
	Dark      bool
}

// NewStyles builds styles from t.
func NewStyles(t theme.Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Accent)).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)),
		UserLabel: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true).
			MarginTop(1),
		UserText: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.UserText)).
			Background(lipgloss.Color(t.UserBubble)).
			Padding(0, 1),
		BotLabel: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)).
			Bold(true).
			MarginTop(1),
		BotText: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.BotText)).
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color(t.Accent)),
		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ef4444")).
			Bold(true),
		Footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)).
			Padding(0, 1),
		Dark: isDark(t.Background),
	}
}

// isDark reports whether a #rrggbb colour has low relative luminance.
func isDark(hex string) bool {
	if len(hex) != 7 {
		return true
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return true
	}
	r, g, b := float64(v>>16&0xff), float64(v>>8&0xff), float64(v&0xff)
	return 0.2126*r+0.7152*g+0.0722*b < 128
}
