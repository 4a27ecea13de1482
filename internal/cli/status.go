package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cruciblehq/cruxgate/internal/protocol"
)

// Represents the 'cruxgate status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	raw, err := call(ctx, RootCmd.Socket, protocol.CmdStatus, nil)
	if err != nil {
		return err
	}

	st, err := protocol.DecodePayload[protocol.StatusResult](raw)
	if err != nil {
		return err
	}

	fmt.Println(statusTable(st))
	return nil
}

func statusTable(st *protocol.StatusResult) string {
	current := "idle"
	if st.Current != "" {
		current = fmt.Sprintf("%s (%s)", st.Current, st.State)
	}

	key := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return key
			}
			return lipgloss.NewStyle()
		}).
		Row("version", st.Version).
		Row("pid", strconv.Itoa(st.Pid)).
		Row("uptime", st.Uptime).
		Row("builds", strconv.Itoa(st.Builds)).
		Row("current", current).
		String()
}

// Represents the 'cruxgate stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	_, err := call(ctx, RootCmd.Socket, protocol.CmdShutdown, nil)
	return err
}
