package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/monitor"
)

// MonitorCell is a monitor cell in JSON output.
type MonitorCell struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

// MonitorResult is the monitor command's JSON output.
type MonitorResult struct {
	Session string          `json:"session"`
	Columns []string        `json:"columns"`
	Rows    [][]MonitorCell `json:"rows"`
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <session-code>",
		Short: "Show the session monitor table",
		Long: `Show one row per participant with their position, current page,
status and the URL they should be on. Cells that cannot be computed show
#ERR; use --verbose to see why.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(rootOpts, args[0], cmd)
		},
	}
}

func runMonitor(opts *RootOptions, code string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	svc, err := opts.open(false)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer svc.Close()

	columns := monitor.DefaultColumns(svc.tracker(nil))
	table, err := monitor.New(svc.store, columns).Session(commandContext(cmd), code)
	if err != nil {
		return formatter.Fail("failed to build monitor", err)
	}

	for i, row := range table.Rows {
		for j, c := range row {
			if c.Err != nil {
				formatter.VerboseLog("row %d %s: %v", i+1, table.Columns[j], c.Err)
			}
		}
	}

	if formatter.Format == "json" {
		result := MonitorResult{Session: code, Columns: table.Columns, Rows: make([][]MonitorCell, len(table.Rows))}
		for i, row := range table.Rows {
			cells := make([]MonitorCell, len(row))
			for j, c := range row {
				cells[j] = MonitorCell{Value: c.Value}
				if c.Err != nil {
					cells[j].Error = c.Err.Error()
				}
			}
			result.Rows[i] = cells
		}
		return formatter.Success(result)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(table.Columns, "\t")))
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = c.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
