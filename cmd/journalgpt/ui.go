package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/chat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	feedbackBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func chatStyle() chat.Style {
	return chat.Style{
		Notice: renderWith(noticeStyle),
		Answer: renderWith(answerStyle),
		Error:  renderWith(errorStyle),
	}
}

// renderWith adapts the variadic Style.Render to a single-string func.
func renderWith(style lipgloss.Style) func(string) string {
	return func(s string) string { return style.Render(s) }
}

func renderMenu() string {
	rule := strings.Repeat("=", 50)
	return strings.Join([]string{
		"",
		rule,
		titleStyle.Render("SMART JOURNALING & PERSONALITY ANALYZER"),
		rule,
		"1. Write a new journal entry",
		"2. Chat about my personality & behavior",
		"3. Exit",
		strings.Repeat("-", 50),
	}, "\n")
}

func renderFeedback(fb analysis.Feedback) string {
	row := func(label, value string) string {
		return labelStyle.Render(label+":") + " " + value
	}
	return feedbackBox.Render(strings.Join([]string{
		row("Mood", fb.Mood),
		row("Clarity", fmt.Sprintf("%d/10", fb.ClarityScore)),
		row("Summary", fb.Summary),
		row("Insight", fb.Insight),
		row("Try tomorrow", fb.SuggestedAction),
	}, "\n"))
}
