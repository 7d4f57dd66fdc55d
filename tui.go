/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Status dashboard
 */

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	styleBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleOK   = styleBase.Foreground(lipgloss.Color("42"))
	styleWarn = styleBase.Foreground(lipgloss.Color("214"))
)

type stateMsg BridgeState

type statusModel struct {
	addr       DeviceAddress
	path       string
	driverName string
	state      BridgeState
}

func (m statusModel) Init() tea.Cmd { return nil }

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = BridgeState(msg)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m statusModel) View() string {
	style := styleOK
	switch m.state {
	case StateWaitingForDevice, StateDisconnected, StateOpening:
		style = styleWarn
	}
	return fmt.Sprintf(
		"%s  %s -> %s  [%s]\npress q to quit (the bridge keeps running)\n",
		style.Render(m.state.String()), m.addr, m.path, m.driverName,
	)
}

// runStatusTUI renders supervisor state transitions until the user
// quits the view. It does not stop the supervisor.
func runStatusTUI(sup *Supervisor) error {
	model := statusModel{
		addr:       sup.cfg.Addr,
		path:       sup.cfg.Path,
		driverName: sup.cfg.DriverName,
		state:      sup.State(),
	}
	program := tea.NewProgram(model)

	go func() {
		for st := range sup.StateChanges() {
			program.Send(stateMsg(st))
		}
	}()

	_, err := program.Run()
	return err
}
