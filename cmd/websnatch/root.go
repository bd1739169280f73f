// Package main provides the entry point for the websnatch CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"websnatch/internal/config"
	"websnatch/internal/fetch"
	"websnatch/internal/history"
	"websnatch/internal/logging"
	"websnatch/internal/naming"
	"websnatch/internal/render"
)

// NewRootCmd creates the root command. Running it with a URL performs
// the snatch workflow: fetch the page, render it to PDF, write the file.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websnatch <url>",
		Short: "Download a web page and convert it to PDF",
		Long: `websnatch downloads a single web page and converts it into a PDF
document. Rendering is delegated to an external engine: the wkhtmltopdf
binary by default, or headless Chrome with --engine chrome.

The page is fetched over plain HTTP and handed to the renderer; with
--direct the URL is passed to the renderer and it fetches the page
itself. Without --output the file name is generated from the URL.`,
		Version:       getVersion(),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSnatch,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (also via CONFIG_PATH)")
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	cmd.Flags().StringP("output", "o", "", "Output PDF path (default: generated from the URL)")
	cmd.Flags().StringP("engine", "e", "", "Rendering engine: wkhtmltopdf or chrome")
	cmd.Flags().Bool("direct", false, "Hand the URL to the renderer instead of fetching it first")
	cmd.Flags().String("format", "", "Paper format (A4, A3, A5, Letter, Legal)")
	cmd.Flags().String("orientation", "", "Page orientation: portrait or landscape")
	cmd.Flags().Float64("margin", 0, "Page margin in inches")
	cmd.Flags().DurationP("timeout", "t", 0, "Render timeout (default: pdf.timeout_secs)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
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

// setupConfig loads the configuration, applies environment overrides for
// the renderer binaries, and wires the logger.
func setupConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	// Allow common container env vars to override the binary paths.
	if cfg.PDF.WkhtmltopdfPath == "" {
		if v := os.Getenv("WKHTMLTOPDF_BIN"); v != "" {
			cfg.PDF.WkhtmltopdfPath = v
		}
	}
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}

	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetLogLevel("debug")
	}
	return cfg, nil
}

// openHistory opens the local archive. Failures only disable recording;
// they never fail a conversion.
func openHistory(cfg config.Config) *history.DB {
	if cfg.History.Disabled {
		return nil
	}
	db, err := history.Open(cfg.HistoryDir(), history.DefaultOptions())
	if err != nil {
		logging.Warn("history archive unavailable", "error", err.Error())
		return nil
	}
	return db
}

// recordAttempt archives one conversion attempt, best effort.
func recordAttempt(hist *history.DB, rec history.Record, start time.Time, convErr error) {
	if hist == nil {
		return
	}
	rec.DurationMS = time.Since(start).Milliseconds()
	if convErr != nil {
		rec.Status = history.StatusFailed
		rec.Error = convErr.Error()
	} else {
		rec.Status = history.StatusOK
	}
	if _, err := hist.Insert(context.Background(), &rec); err != nil {
		logging.Warn("history insert failed", "error", err.Error())
	}
}

// runSnatch is the core workflow: fetch, render, write. The PDF only
// reaches disk after a successful render, so failures never leave a
// partial file behind.
func runSnatch(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig(cmd)
	if err != nil {
		return err
	}

	u, err := fetch.ParseURL(args[0])
	if err != nil {
		return err
	}

	margin := cfg.PDF.MarginInches
	if cmd.Flags().Changed("margin") {
		margin, _ = cmd.Flags().GetFloat64("margin")
	}
	format, _ := cmd.Flags().GetString("format")
	orientation, _ := cmd.Flags().GetString("orientation")
	job, err := render.NewJob(cfg, format, orientation, margin)
	if err != nil {
		return err
	}

	engineName, _ := cmd.Flags().GetString("engine")
	eng, err := render.New(engineName, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if chrome, ok := eng.(*render.Chrome); ok {
			chrome.Close()
		}
	}()

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = naming.OutputName(u, time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "Using generated output name: %s\n", out)
	}

	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	start := time.Now()
	rec := history.Record{URL: u.String(), Engine: eng.Name()}

	if direct, _ := cmd.Flags().GetBool("direct"); direct {
		job.URL = u.String()
	} else {
		fetcher := fetch.NewFromConfig(cfg.Fetch)
		fetchCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Fetch.Timeout)
		page, err := fetcher.Fetch(fetchCtx, u)
		cancel()
		if err != nil {
			recordAttempt(hist, rec, start, err)
			return fmt.Errorf("fetch failed: %w", err)
		}
		job.HTML = string(page.HTML)
		rec.Title = page.Title
		logging.Info("page fetched", "url", u.String(), "bytes", len(page.HTML), "title", page.Title)
	}

	timeout := time.Duration(cfg.PDF.TimeoutSecs) * time.Second
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	renderCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
	pdf, err := eng.Render(renderCtx, job)
	cancel()
	if err != nil {
		recordAttempt(hist, rec, start, err)
		return fmt.Errorf("conversion failed: %w", err)
	}

	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		recordAttempt(hist, rec, start, err)
		return fmt.Errorf("write %s: %w", out, err)
	}

	rec.OutputPath = out
	rec.PDFBytes = int64(len(pdf))
	recordAttempt(hist, rec, start, nil)

	logging.Info("pdf written", "path", out, "bytes", len(pdf), "engine", eng.Name())
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", out, len(pdf))
	return nil
}
