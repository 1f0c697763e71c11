package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

func (m Model) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.history {
		stamp := m.styles.Muted.Render(msg.Timestamp.Local().Format("15:04"))
		if msg.IsUser() {
			sb.WriteString(m.styles.UserLabel.Render("You") + " " + stamp + "\n")
			sb.WriteString(m.styles.UserText.Render(msg.Text))
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(m.styles.BotLabel.Render("NeethOs AI") + " " + stamp + "\n")
		sb.WriteString(m.styles.BotText.Render(strings.TrimSpace(m.safeRenderMarkdown(msg.Text))))
		sb.WriteString("\n")
	}
	return sb.String()
}

// safeRenderMarkdown falls back to the raw text when glamour fails or panics.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("markdown render panicked", zap.Any("panic", r))
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
		m.log.Warn("markdown render failed", zap.Error(err))
	}
	return content
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.styles.Header.Render("NeethOs AI") + " " + m.styles.Muted.Render(m.convID)

	status := ""
	switch {
	case m.loading:
		status = m.spinner.View() + m.styles.Muted.Render(" Thinking...")
	case m.errText != "":
		status = m.styles.Error.Render(m.errText)
	}

	footer := m.styles.Footer.Render(fmt.Sprintf("Enter send  Alt+Enter newline  PgUp/PgDn scroll  Esc quit  (%d messages)", len(m.history)))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.textarea.View(),
		footer,
	)
}
