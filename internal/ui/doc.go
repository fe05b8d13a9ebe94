// Package ui renders the terminal output of the poolctl CLI with Lipgloss.
//
// Everything here is run-once output: a command prints a header, does its
// work and prints a table or a result line. Nothing reads the terminal
// except Confirm and the secret prompt in the command layer.
//
// Widths adapt to the terminal (see TerminalWidth) and are clamped between
// MinTerminalWidth and MaxContentWidth so output stays readable on a serial
// console as well as on a wide desktop terminal.
package ui
