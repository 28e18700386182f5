package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Pahihq/ctfd-parser/internal/config"
)

//go:embed templates/ctfdump.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .ctfdump site file",
		Long: `Init writes a commented .ctfdump site file to the current directory.

The file holds defaults and per-platform settings such as session
cookies, API tokens, login credentials and concurrency. Command line
flags always win over the file.

Examples:
  # Create .ctfdump in current directory
  ctfdump init

  # Create the file at a specific path
  ctfdump init -o ~/.config/ctfdump/config.yaml

  # Force overwrite existing file
  ctfdump init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the site file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing site file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("site file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/ctfdump.yaml")
	if err != nil {
		return fmt.Errorf("failed to read site file template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may carry credentials.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write site file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created site file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-platform settings such as:")
	fmt.Fprintln(out, "  - Session cookies and API tokens")
	fmt.Fprintln(out, "  - Login credentials")
	fmt.Fprintln(out, "  - Concurrency and proxy")
	return nil
}
