package main

import (
	"github.com/spf13/cobra"

	_ "spool/internal/backend/mongo"
	_ "spool/internal/backend/redis"
	_ "spool/internal/backend/sqlite"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var queueFlag string
	var backendFlag string

	ctx := newCommandContext(&configFlag, &queueFlag, &backendFlag)

	rootCmd := &cobra.Command{
		Use:           "spool",
		Short:         "Work-item queue engine CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&queueFlag, "queue", "q", "", "Queue name override")
	rootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "Backend override (sqlite, redis, mongo)")

	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newClaimCommand(ctx))
	rootCmd.AddCommand(newCompleteCommand(ctx))
	rootCmd.AddCommand(newFailCommand(ctx))
	rootCmd.AddCommand(newPayloadCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newRecoverCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
