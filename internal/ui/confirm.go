package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm prints a warning box and asks for a y/N answer on in.
// Anything but "y" or "yes" declines, including EOF.
func Confirm(out io.Writer, in io.Reader, title string, warnings []string) bool {
	lines := []string{
		lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render("⚠  " + title),
		"",
	}
	for _, w := range warnings {
		lines = append(lines, "• "+w)
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(WarningColor).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
	fmt.Fprintln(out, box)

	fmt.Fprint(out, WarningStyle.Render("Continue? [y/N] "))
	answer, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && answer == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	fmt.Fprintln(out, MutedStyle.Render("Cancelled."))
	return false
}
