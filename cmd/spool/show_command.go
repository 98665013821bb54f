package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/engine"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var payloadFlag bool

	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show a work item's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				item, err := eng.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Id:        %s\n", item.ID)
				fmt.Fprintf(out, "Queue:     %s\n", item.QueueName)
				fmt.Fprintf(out, "State:     %s\n", item.State)
				fmt.Fprintf(out, "Sequence:  %d\n", item.Sequence)
				if item.ParentID != "" {
					fmt.Fprintf(out, "Parent:    %s\n", item.ParentID)
				}
				fmt.Fprintf(out, "Created:   %s\n", item.CreatedAt.Local().Format(time.RFC3339))
				if item.ClaimedAt != nil {
					fmt.Fprintf(out, "Claimed:   %s\n", item.ClaimedAt.Local().Format(time.RFC3339))
				}
				if item.ResolvedAt != nil {
					fmt.Fprintf(out, "Resolved:  %s\n", item.ResolvedAt.Local().Format(time.RFC3339))
				}
				if item.Failure != nil {
					fmt.Fprintf(out, "Failure:   %s/%s: %s\n",
						item.Failure.Kind, item.Failure.Code, item.Failure.Message)
				}

				names, err := eng.ListFiles(cmd.Context(), item.ID)
				if err != nil {
					return err
				}
				if len(names) > 0 {
					fmt.Fprintln(out, "Files:")
					for _, name := range names {
						fmt.Fprintf(out, "  %s\n", name)
					}
				}

				if payloadFlag {
					payload, err := eng.LoadPayload(cmd.Context(), item.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Payload:   %s\n", payload)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&payloadFlag, "payload", false, "Include the payload document")
	return cmd
}
