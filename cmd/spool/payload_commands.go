package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spool/internal/engine"
)

func newPayloadCommand(ctx *commandContext) *cobra.Command {
	payloadCmd := &cobra.Command{
		Use:   "payload",
		Short: "Read and write work-item payload documents",
	}
	payloadCmd.AddCommand(newPayloadGetCommand(ctx))
	payloadCmd.AddCommand(newPayloadSetCommand(ctx))
	return payloadCmd
}

func newPayloadGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <item-id>",
		Short: "Print an item's payload document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				payload, err := eng.LoadPayload(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			})
		},
	}
}

func newPayloadSetCommand(ctx *commandContext) *cobra.Command {
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "set <item-id> [payload-json]",
		Short: "Replace an item's payload document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			literal := ""
			if len(args) == 2 {
				literal = args[1]
			}
			payload, err := readPayloadArg(literal, payloadFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if payload == nil {
				return fmt.Errorf("a payload document is required (argument, --payload-file, or -)")
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.SavePayload(cmd.Context(), args[0], payload)
			})
		},
	}

	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "File containing the payload JSON document")
	return cmd
}
