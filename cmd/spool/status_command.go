package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"spool/internal/engine"
	"spool/internal/workitem"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var plainFlag bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-state item counts for the input and output queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				queues := []string{eng.Queue(), eng.OutputQueue()}
				rows := make([][]string, 0, len(queues))
				for _, queue := range queues {
					stats, err := eng.Stats(cmd.Context(), queue)
					if err != nil {
						return err
					}
					total := 0
					row := []string{queue}
					for _, state := range workitem.AllStates() {
						row = append(row, strconv.Itoa(stats[state]))
						total += stats[state]
					}
					row = append(row, strconv.Itoa(total))
					rows = append(rows, row)
				}

				out := cmd.OutOrStdout()
				if plainFlag || !isatty.IsTerminal(os.Stdout.Fd()) {
					for _, row := range rows {
						fmt.Fprintf(out, "%s claimable=%s claimed=%s completed=%s failed=%s total=%s\n",
							row[0], row[1], row[2], row[3], row[4], row[5])
					}
					return nil
				}

				headers := []string{"Queue"}
				aligns := []columnAlignment{alignLeft}
				for _, state := range workitem.AllStates() {
					headers = append(headers, string(state))
					aligns = append(aligns, alignRight)
				}
				headers = append(headers, "Total")
				aligns = append(aligns, alignRight)
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&plainFlag, "plain", false, "Machine-friendly output even on a terminal")
	return cmd
}
