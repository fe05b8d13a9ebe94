package ui

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrScanCancelled is returned when the user quits while a scan is running
var ErrScanCancelled = errors.New("scan cancelled")

// interactive reports whether the spinner can take over the terminal
var interactive = IsTerminal

// SpinnerStyle colors the scan spinner
var SpinnerStyle = lipgloss.NewStyle().Foreground(PrimaryColor)

type scanDoneMsg struct {
	err error
}

// ScanModel shows a spinner and elapsed time while a blocking scan runs
type ScanModel struct {
	Title     string
	Timeout   time.Duration
	Spinner   spinner.Model
	Started   time.Time
	Done      bool
	Cancelled bool
	Err       error

	scan func() error
}

// NewScanModel returns a model that runs scan when the program starts
func NewScanModel(title string, timeout time.Duration, scan func() error) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return ScanModel{
		Title:   title,
		Timeout: timeout,
		Spinner: s,
		Started: time.Now(),
		scan:    scan,
	}
}

// Init starts the spinner and the scan
func (m ScanModel) Init() tea.Cmd {
	scan := m.scan
	return tea.Batch(
		m.Spinner.Tick,
		func() tea.Msg { return scanDoneMsg{err: scan()} },
	)
}

// Update handles messages and updates the model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.Cancelled = true
			return m, tea.Quit
		}

	case scanDoneMsg:
		m.Done = true
		m.Err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner line. Nothing is left behind once the scan ends.
func (m ScanModel) View() string {
	if m.Done || m.Cancelled {
		return ""
	}
	elapsed := time.Since(m.Started).Truncate(time.Second)
	line := fmt.Sprintf("%s %s", m.Spinner.View(), m.Title)
	if m.Timeout > 0 {
		line += MutedStyle.Render(fmt.Sprintf("  %s / %s", elapsed, m.Timeout))
	}
	return line + "\n"
}

// RunScan runs scan behind a spinner on a terminal, or after a plain
// progress line when output is piped
func RunScan(out io.Writer, title string, timeout time.Duration, scan func() error) error {
	if !interactive() {
		fmt.Fprintf(out, "%s (timeout: %s)...\n\n", title, timeout)
		return scan()
	}

	final, err := tea.NewProgram(NewScanModel(title, timeout, scan), tea.WithOutput(out)).Run()
	if err != nil {
		return err
	}
	m := final.(ScanModel)
	if m.Cancelled {
		return ErrScanCancelled
	}
	return m.Err
}
