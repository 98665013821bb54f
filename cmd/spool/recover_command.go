package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"spool/internal/engine"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Return orphaned claims to the claimable pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// One sweeper at a time per deployment; overlapping sweeps
			// are harmless per item but would double-log counts.
			lock := flock.New(filepath.Join(cfg.Logging.Dir, "recover.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire recovery lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another recovery sweep is already running")
			}
			defer lock.Unlock()

			return ctx.withEngine(func(eng *engine.Engine) error {
				queues := []string{eng.Queue()}
				if allFlag {
					queues = append(queues, eng.OutputQueue())
				}
				total := 0
				for _, queue := range queues {
					count, err := eng.RecoverQueue(cmd.Context(), queue)
					if err != nil {
						return err
					}
					total += count
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d item(s)\n", total)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Also sweep the derived output queue")
	return cmd
}
