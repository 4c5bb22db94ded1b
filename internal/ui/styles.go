// Package ui holds the console styles used by the preview and ingest
// commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#0969DA")
	accentColor  = lipgloss.Color("#2DA44E")
	errorColor   = lipgloss.Color("#CF222E")
	dimColor     = lipgloss.Color("#6E7681")
	linkColor    = lipgloss.Color("#58A6FF")
	scoreColor   = lipgloss.Color("#F778BA")
	titleColor   = lipgloss.Color("#39D353")
	dateColor    = lipgloss.Color("#A371F7")
	sourceColor  = lipgloss.Color("#FFA657")

	HeaderStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentColor)

	SectionStyle = lipgloss.NewStyle().
			Foreground(dateColor).
			Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Foreground(titleColor).
			Bold(true)

	ScoreStyle = lipgloss.NewStyle().
			Foreground(scoreColor).
			Bold(true)

	SourceStyle = lipgloss.NewStyle().
			Foreground(sourceColor)

	LinkStyle = lipgloss.NewStyle().
			Foreground(linkColor).
			Underline(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	RelatedStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(6)
)
