// Package ui renders CLI output: colored labels, titles, tables, progress
// bars and confirmation prompts.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D9FF")).
			Bold(true)
)

func init() {
	if color.NoColor {
		pterm.DisableStyling()
	}
}

// Success, Warning, Error and Info color an operation label such as
// "CREATE" or "ERROR".
func Success(label string) string { return successColor.Sprint(label) }
func Warning(label string) string { return warningColor.Sprint(label) }
func Error(label string) string   { return errorColor.Sprint(label) }
func Info(label string) string    { return infoColor.Sprint(label) }

// Title renders a section heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Table writes rows under header to w.
func Table(w io.Writer, header []string, rows [][]string) error {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)

	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Confirm asks a yes/no question on the terminal. Without a terminal it
// returns def without asking.
func Confirm(message string, def bool) (bool, error) {
	if !IsTerminal(os.Stdin) {
		return def, nil
	}

	answer := def
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer); err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}

	return answer, nil
}

// ProgressBar shows the progress of one transfer on w.
type ProgressBar struct {
	bar *pterm.ProgressbarPrinter
}

// StartProgressBar starts a bar titled title, counting to 100.
func StartProgressBar(w io.Writer, title string) (*ProgressBar, error) {
	bar, err := pterm.DefaultProgressbar.
		WithTotal(100).
		WithTitle(title).
		WithWriter(w).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return nil, err
	}

	return &ProgressBar{bar: bar}, nil
}

// Set moves the bar to percent.
func (p *ProgressBar) Set(percent float64) {
	if p == nil {
		return
	}

	target := min(max(int(percent), 0), 100)
	if delta := target - p.bar.Current; delta > 0 {
		p.bar.Add(delta)
	}
}

// Stop removes the bar.
func (p *ProgressBar) Stop() {
	if p == nil {
		return
	}

	_, _ = p.bar.Stop()
}
