package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spool/internal/engine"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Manage work-item attachments",
	}
	filesCmd.AddCommand(newFilesListCommand(ctx))
	filesCmd.AddCommand(newFilesGetCommand(ctx))
	filesCmd.AddCommand(newFilesAddCommand(ctx))
	filesCmd.AddCommand(newFilesRemoveCommand(ctx))
	return filesCmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <item-id>",
		Short: "List an item's attachment names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				names, err := eng.ListFiles(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newFilesGetCommand(ctx *commandContext) *cobra.Command {
	var outFlag string

	cmd := &cobra.Command{
		Use:   "get <item-id> <name>",
		Short: "Fetch attachment content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				content, err := eng.GetFile(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if outFlag == "" || outFlag == "-" {
					_, err := cmd.OutOrStdout().Write(content)
					return err
				}
				if err := os.WriteFile(outFlag, content, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outFlag, err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write content to this path instead of stdout")
	return cmd
}

func newFilesAddCommand(ctx *commandContext) *cobra.Command {
	var nameFlag string

	cmd := &cobra.Command{
		Use:   "add <item-id> <path>",
		Short: "Attach a file to an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			name := nameFlag
			if name == "" {
				name = filepath.Base(args[1])
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.AddFile(cmd.Context(), args[0], name, content)
			})
		},
	}

	cmd.Flags().StringVar(&nameFlag, "name", "", "Attachment name (defaults to the file's base name)")
	return cmd
}

func newFilesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <item-id> <name>",
		Aliases: []string{"remove"},
		Short:   "Delete an attachment",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				return eng.RemoveFile(cmd.Context(), args[0], args[1])
			})
		},
	}
}
