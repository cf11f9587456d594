package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// styles used across the CLI output.
var styles = struct {
	Bold       lipgloss.Style
	Subtle     lipgloss.Style
	Online     lipgloss.Style
	Mine       lipgloss.Style
	Theirs     lipgloss.Style
	SuccessBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Bold:   lipgloss.NewStyle().Bold(true),
	Subtle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	Online: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),

	Mine: lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Align(lipgloss.Right),

	Theirs: lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")),

	SuccessBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("42")).
		Padding(0, 1).
		Width(60),

	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(0, 1).
		Width(60),
}

func printError(format string, a ...interface{}) {
	fmt.Fprintln(os.Stderr, styles.ErrorBox.Render(fmt.Sprintf(format, a...)))
}

func printSuccess(title, content string) {
	fmt.Println(styles.SuccessBox.Render(styles.Bold.Render(title) + "\n" + content))
}

func printInfo(format string, a ...interface{}) {
	fmt.Println(styles.Subtle.Render(fmt.Sprintf(format, a...)))
}
