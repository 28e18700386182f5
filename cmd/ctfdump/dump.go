package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/database"
	ctflog "github.com/Pahihq/ctfd-parser/internal/log"
	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/pipeline"
	"github.com/Pahihq/ctfd-parser/internal/report"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// NewDumpCmd creates the dump command.
func NewDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [locator...]",
		Short: "Download challenges from a CTFd platform",
		Long: `Dump downloads challenges and their attachments.

Each locator is either a challenge listing (https://ctf.example.com/challenges)
or a single challenge (https://ctf.example.com/challenges#Warmup-7 or
https://ctf.example.com/challenges/7). Listings are expanded through the
platform API, falling back to the listing HTML.

Examples:
  # Dump every visible challenge using a browser session cookie
  ctfdump dump --cookie "session=abc123" https://ctf.example.com/challenges

  # Log in through the form and dump two challenges
  ctfdump dump -u alice -P hunter2 https://ctf.example.com/challenges/7 https://ctf.example.com/challenges/9

  # Use an API token, keep the raw pages, skip the zip
  ctfdump dump -k ctfd_0123... --save-html --no-archive https://ctf.example.com/challenges

  # Print the run report as JSON
  ctfdump dump --json https://ctf.example.com/challenges`,
		Args: cobra.ArbitraryArgs,
		RunE: runDumpCmd,
	}

	// Credentials
	cmd.Flags().StringP(config.FlagUsername, "u", "", "Username for the form login")
	cmd.Flags().StringP(config.FlagPassword, "P", "", "Password for the form login")
	cmd.Flags().StringP(config.FlagToken, "k", "", "Platform API access token")
	cmd.Flags().String(config.FlagCookie, "", `Raw Cookie header, e.g. "session=abc; other=x"`)
	cmd.Flags().String(config.FlagLoginURL, "", "Login page URL (default: scheme://host/login of the first locator)")

	// Output
	cmd.Flags().StringP("output", "o", "./"+config.DefaultOutputDir, "Output directory")
	cmd.Flags().IntP(config.FlagConcurrency, "n", config.DefaultConcurrency, "Number of challenges processed at once")
	cmd.Flags().Bool(config.FlagNoFiles, false, "Do not download attachments")
	cmd.Flags().Bool(config.FlagNoDesc, false, "Do not write description.txt")
	cmd.Flags().Bool(config.FlagSaveHTML, false, "Write the raw challenge page to page.html")
	cmd.Flags().Bool("no-archive", false, "Do not zip the output directory")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")
	cmd.Flags().BoolP("json", "j", false, "Print the run report as JSON")
	cmd.Flags().String("json-out", "", "Also write the run report as JSON to this file")

	// Transport
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	cmd.Flags().String(config.FlagProxy, "", "Proxy URL (http, https, socks5, socks5h)")
	cmd.Flags().Float64("rate", 0, "Maximum requests per second (0 disables pacing)")
	cmd.Flags().Bool("cloudflare", false, "Use a browser-like TLS fingerprint")

	cmd.Flags().StringP("config", "c", "",
		"Site file path (default: .ctfdump in current or home directory)")

	return cmd
}

// runDumpCmd executes the dump command.
func runDumpCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := ctflog.NewLogger(cmd.ErrOrStderr(), cfg.Verbose, false)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDump(ctx, cfg, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from flags and the site file.
// Flags given explicitly win over the site file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Targets = args
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error

	stringFlags := []struct {
		name string
		dst  *string
	}{
		{config.FlagUsername, &cfg.Username},
		{config.FlagPassword, &cfg.Password},
		{config.FlagToken, &cfg.Token},
		{config.FlagCookie, &cfg.Cookie},
		{config.FlagLoginURL, &cfg.LoginURL},
		{"output", &cfg.OutputDir},
		{config.FlagProxy, &cfg.Proxy},
		{"json-out", &cfg.JSONOut},
		{"config", &cfg.ConfigFilePath},
	}
	for _, s := range stringFlags {
		if *s.dst, err = flags.GetString(s.name); err != nil {
			return nil, err
		}
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{config.FlagNoFiles, &cfg.NoFiles},
		{config.FlagNoDesc, &cfg.NoDesc},
		{config.FlagSaveHTML, &cfg.SaveHTML},
		{"no-archive", &cfg.NoArchive},
		{"no-history", &cfg.NoHistory},
		{"json", &cfg.JSONReport},
		{"cloudflare", &cfg.Cloudflare},
	}
	for _, b := range boolFlags {
		if *b.dst, err = flags.GetBool(b.name); err != nil {
			return nil, err
		}
	}

	if cfg.Concurrency, err = flags.GetInt(config.FlagConcurrency); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Rate, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}

	// An explicit --config must exist; otherwise a missing site file is fine.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load site file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if cfg.SiteConfigs != nil && len(cfg.Targets) > 0 {
		if u, err := model.ParseLocator(cfg.Targets[0]); err == nil {
			sc, err := cfg.SiteConfigs.GetSiteConfig(u.Host)
			if err != nil {
				return nil, err
			}
			cfg.ApplySite(sc, flags.Changed)
		}
	}

	return cfg, nil
}

// newTransport builds the shared client from cfg.
func newTransport(cfg *config.Config, logger *slog.Logger) (*transport.Client, error) {
	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithLogger(logger),
	}
	if len(cfg.Targets) > 0 {
		if u, err := model.ParseLocator(cfg.Targets[0]); err == nil {
			opts = append(opts, transport.WithCredentialHost(u.Host))
		}
	}
	if cfg.Cookie != "" {
		opts = append(opts, transport.WithCookie(cfg.Cookie))
	}
	if cfg.Token != "" {
		opts = append(opts, transport.WithToken(cfg.Token))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(cfg.Headers))
	}
	if cfg.Proxy != "" {
		opts = append(opts, transport.WithProxy(cfg.Proxy))
	}
	if cfg.Rate > 0 {
		opts = append(opts, transport.WithRateLimit(cfg.Rate))
	}
	if cfg.Cloudflare {
		opts = append(opts, transport.WithCloudflareBypass(true))
	}
	return transport.New(opts...)
}

// runDump executes one dump run and prints its report to out.
func runDump(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	root, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	cfg.OutputDir = root

	client, err := newTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var history pipeline.HistoryStore
	if !cfg.NoHistory {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("history database unavailable, run will not be recorded", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close()
			history = db
		}
	}

	logger.Info("starting dump",
		"targets", cfg.Targets,
		"output", root,
		"concurrency", cfg.Concurrency,
	)

	run := model.NewRunReport(cfg.Targets, root)
	p := pipeline.DefaultPipeline(client, cfg, history, logger)
	logger.Debug("pipeline ready", "steps", p.StepNames())
	execErr := p.Execute(ctx, run)
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	if err := writeReport(out, cfg, run); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if errors.Is(execErr, context.Canceled) {
		return errors.New("dump interrupted; partial results were indexed")
	}
	return execErr
}

// writeReport prints the run report in the requested format, and also
// writes it as JSON to cfg.JSONOut when set.
func writeReport(out io.Writer, cfg *config.Config, run *model.RunReport) error {
	var writers []report.Writer
	if cfg.JSONReport {
		writers = append(writers, report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion())))
	} else {
		writers = append(writers, report.NewSummaryWriter(out, report.WithVerbose(cfg.Verbose)))
	}

	if cfg.JSONOut != "" {
		f, err := os.OpenFile(cfg.JSONOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640) //nolint:gosec // user-supplied output path
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", cfg.JSONOut, err)
		}
		defer f.Close()
		writers = append(writers, report.NewJSONWriter(f, report.WithPrettyPrint(), report.WithVersion(getVersion())))
	}

	_, err := report.NewMultiWriter(writers...).Write(run)
	return err
}
