package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestScanModel_Update(t *testing.T) {
	scanErr := errors.New("no multicast route")

	tests := []struct {
		name          string
		msg           tea.Msg
		wantDone      bool
		wantCancelled bool
		wantErr       error
	}{
		{"scan finished", scanDoneMsg{}, true, false, nil},
		{"scan failed", scanDoneMsg{err: scanErr}, true, false, scanErr},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, false, true, nil},
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, false, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewScanModel("Scanning", 10*time.Second, func() error { return nil })

			next, cmd := m.Update(tt.msg)
			got := next.(ScanModel)

			if got.Done != tt.wantDone || got.Cancelled != tt.wantCancelled {
				t.Errorf("Done/Cancelled = %v/%v, want %v/%v", got.Done, got.Cancelled, tt.wantDone, tt.wantCancelled)
			}
			if got.Err != tt.wantErr {
				t.Errorf("Err = %v, want %v", got.Err, tt.wantErr)
			}
			if cmd == nil {
				t.Fatal("expected a quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("command is not tea.Quit")
			}
			if got.View() != "" {
				t.Errorf("View() after quit = %q, want empty", got.View())
			}
		})
	}
}

func TestScanModel_ViewWhileScanning(t *testing.T) {
	m := NewScanModel("Scanning for controllers", 10*time.Second, func() error { return nil })

	view := m.View()
	if !strings.Contains(view, "Scanning for controllers") {
		t.Errorf("View() = %q, want the title", view)
	}
	if !strings.Contains(view, "10s") {
		t.Errorf("View() = %q, want the timeout", view)
	}
}

func TestRunScan_Headless(t *testing.T) {
	saved := interactive
	interactive = func() bool { return false }
	defer func() { interactive = saved }()

	var out bytes.Buffer
	called := false
	err := RunScan(&out, "Scanning for controllers", 5*time.Second, func() error {
		called = true
		return errors.New("boom")
	})

	if !called {
		t.Error("scan was not run")
	}
	if err == nil || err.Error() != "boom" {
		t.Errorf("RunScan() error = %v, want the scan error", err)
	}
	if !strings.Contains(out.String(), "Scanning for controllers (timeout: 5s)") {
		t.Errorf("output = %q", out.String())
	}
}
