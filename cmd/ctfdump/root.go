package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ctfdump.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctfdump",
		Short: "Mirror a CTFd challenge catalogue to disk",
		Long: `ctfdump downloads the challenges of a CTFd-style competition platform.

Each challenge is written to <output>/<category>/<title>/ with a
description.txt and its attachments. An INDEX.md manifest is written at
the top of the output directory and the directory is zipped next to it.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewDumpCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
