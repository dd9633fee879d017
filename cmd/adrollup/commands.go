package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"adrollup/internal/app"
	"adrollup/internal/config"
	"adrollup/internal/infrastructure"
	"adrollup/internal/ingest"
	"adrollup/internal/report"
	"adrollup/internal/services"
	"adrollup/internal/validation"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	outDir   string
	event    string
	property string
	store    string
	notify   bool
	archive  bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   app.AppName,
		Short: "Combine ad performance sheets into event and property reports",
		Long: `adrollup reads every sheet of an ad performance workbook, stores each
sheet in its own table, combines the qualifying rows and aggregates them by
event and by property.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(nil)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run()
		},
	}
}

// newRunCmd builds the one-shot command.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workbook.xlsx>",
		Short: "Process a workbook and write its reports",
		Long: `Process a workbook once, print the run summary as JSON and write the
event report, property report and both summaries to the output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkbook(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory for reports (default: configured reports dir)")
	cmd.Flags().StringVarP(&opts.event, "event", "e", report.SelectAll, "Event selection for the event report")
	cmd.Flags().StringVarP(&opts.property, "property", "p", report.SelectAll, "Property selection for the property report")
	cmd.Flags().StringVar(&opts.store, "store", "", "Store backend override: file or memory")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "Email the summary digest after processing")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "Archive the reports to the configured sink")
	return cmd
}

func runWorkbook(cmd *cobra.Command, path string, opts *runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	switch opts.store {
	case "":
	case "file", "memory":
		cfg.Storage.Backend = opts.store
	default:
		return fmt.Errorf("unknown store backend %q", opts.store)
	}

	logger := infrastructure.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	application, err := app.NewApplication(cfg, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close(context.Background())

	outDir := opts.outDir
	if outDir == "" {
		outDir = application.Paths.ReportsDir
	}
	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateExcelFile(path); err != nil {
		return err
	}
	if err := validator.ValidateOutputDirectory(outDir); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	run, err := application.Pipeline.Run(ctx, ingest.Workbook{Name: filepath.Base(path), Data: f})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(run.Summary); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}

	switch run.Summary.Status {
	case services.RunIngestFailed:
		return fmt.Errorf("workbook could not be ingested: %s", run.Summary.IngestError)
	case services.RunEmpty:
		logger.Warn("No qualifying data; no reports written", slog.String("workbook", path))
		return nil
	}

	id := run.Summary.ID
	selections := map[report.View]string{
		report.ViewEvents:     opts.event,
		report.ViewProperties: opts.property,
	}
	for _, view := range report.AllViews {
		download, err := application.Pipeline.Download(id, view, selections[view])
		if err != nil {
			return fmt.Errorf("failed to render %s report: %w", view, err)
		}
		target := filepath.Join(outDir, download.FileName)
		if err := os.WriteFile(target, download.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		logger.Info("Report written", slog.String("view", string(view)), slog.String("path", target))
	}

	if opts.notify {
		if err := application.Pipeline.Validate(ctx, id); err != nil {
			return err
		}
	}
	if opts.archive {
		result, err := application.Pipeline.Archive(ctx, id)
		if err != nil {
			return err
		}
		logger.Info("Reports archived",
			slog.Int("written", len(result.Written)),
			slog.Int("existing", len(result.Existing)))
	}
	return nil
}
