package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	bridgeOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	bridgeFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	bridgeHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// bridgeCallFunc performs one bridge round trip and returns the line to show when it settles.
type bridgeCallFunc func(ctx context.Context) (string, error)

type bridgeCallDoneMsg struct {
	result string
	err    error
}

// bridgeCallModel spins while a bridge call is outstanding and leaves its outcome on screen.
type bridgeCallModel struct {
	spinner spinner.Model
	label   string
	call    tea.Cmd
	result  string
	err     error
	done    bool
}

func newBridgeCallModel(label string, call tea.Cmd) bridgeCallModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
	)

	return bridgeCallModel{spinner: s, label: label, call: call}
}

func (m bridgeCallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.call)
}

func (m bridgeCallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bridgeCallDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m bridgeCallModel) View() string {
	if !m.done {
		return fmt.Sprintf("%s %s\n", m.spinner.View(), m.label)
	}
	if m.err != nil {
		line := bridgeFailStyle.Render("✗ " + m.err.Error())
		if hint := bridgeErrorHint(m.err); hint != "" {
			line += "\n  " + bridgeHintStyle.Render(hint)
		}
		return line + "\n"
	}
	if m.result == "" {
		return ""
	}

	return bridgeOKStyle.Render("✓ "+m.result) + "\n"
}

// bridgeErrorHint suggests the next step for bridge failures a user can act on.
func bridgeErrorHint(err error) string {
	switch {
	case errors.Is(err, errBridgeNotConfigured):
		return "start the bridge daemon and set bridge.url"
	case errors.Is(err, domain.ErrPairingInFlight):
		return "wait for the pending pairing request to finish"
	case errors.Is(err, domain.ErrUserCancelled):
		return "approve the request in the wallet and retry"
	case errors.Is(err, context.DeadlineExceeded):
		return "the bridge did not answer in time; check bridge.timeout"
	default:
		return ""
	}
}

func runBridgeCallSpinner(ctx context.Context, output io.Writer, label string, call bridgeCallFunc) (string, error) {
	callCmd := func() tea.Msg {
		result, err := call(ctx)
		return bridgeCallDoneMsg{result: result, err: err}
	}

	p := tea.NewProgram(
		newBridgeCallModel(label, callCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(bridgeCallModel)
	if !ok {
		return "", fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.result, result.err
}
