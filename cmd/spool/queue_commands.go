package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/engine"
	"spool/internal/workitem"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var payloadFlag string
	var payloadFile string
	var parentFlag string
	var outputFlag bool

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a work item to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayloadArg(payloadFlag, payloadFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				var id string
				var enqErr error
				if outputFlag {
					if parentFlag == "" {
						return fmt.Errorf("--output requires --parent")
					}
					id, enqErr = eng.EnqueueOutput(cmd.Context(), parentFlag, payload)
				} else {
					id, enqErr = eng.EnqueueTo(cmd.Context(), eng.Queue(), parentFlag, payload)
				}
				if enqErr != nil {
					return enqErr
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&payloadFlag, "payload", "p", "", "Payload JSON document (use - to read stdin)")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "File containing the payload JSON document")
	cmd.Flags().StringVar(&parentFlag, "parent", "", "Id of the item that produced this one")
	cmd.Flags().BoolVar(&outputFlag, "output", false, "Enqueue to the derived output queue")
	return cmd
}

func newClaimCommand(ctx *commandContext) *cobra.Command {
	var waitFlag time.Duration

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Take exclusive ownership of the oldest claimable item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				var id string
				var err error
				if waitFlag > 0 {
					id, err = eng.ClaimWait(cmd.Context(), waitFlag)
				} else {
					id, err = eng.Claim(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&waitFlag, "wait", 0, "Block up to this long for an item (backends without native waiting claim once)")
	return cmd
}

func newCompleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <item-id>",
		Short: "Resolve a claimed item as successfully processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.Complete(cmd.Context(), args[0])
			})
		},
	}
}

func newFailCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var codeFlag string
	var messageFlag string

	cmd := &cobra.Command{
		Use:   "fail <item-id>",
		Short: "Resolve a claimed item as permanently failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failure := &workitem.Failure{
				Kind:    kindFlag,
				Code:    codeFlag,
				Message: messageFlag,
			}
			if err := failure.Validate(); err != nil {
				return err
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.Fail(cmd.Context(), args[0], failure)
			})
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "Failure kind")
	cmd.Flags().StringVar(&codeFlag, "code", "", "Failure code")
	cmd.Flags().StringVar(&messageFlag, "message", "", "Human-readable failure message")
	return cmd
}

// readPayloadArg resolves the payload from a literal flag, a file, or
// stdin, and checks it parses as JSON before anything touches the backend.
func readPayloadArg(literal, file string, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case literal == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		raw = data
	case literal != "":
		raw = []byte(literal)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = data
	default:
		return nil, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
