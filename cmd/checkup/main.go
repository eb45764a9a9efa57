package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/checkup-extractor/internal/app"
	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/ingest"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

type rootOptions struct {
	inmem    bool
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "checkup",
		Short:         "Extract structured health checkup records from documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.inmem, "inmem", false, "use an in-memory SQLite store")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default LOG_LEVEL)")

	root.AddCommand(
		newParseCmd(opts),
		newProvidersCmd(opts),
		newExportCmd(opts),
		newMigrateCmd(opts),
		newDBHealthCmd(opts),
		newOCRCmd(opts),
		newBatchCmd(opts),
	)
	return root
}

// setup loads config and a stderr logger so stdout stays machine readable.
func (o *rootOptions) setup(errOut io.Writer) (*common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig()
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = ":memory:"
	}
	logger := app.NewLogger(errOut, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

type parseOptions struct {
	visionProvider string
	visionModel    string
	visionKey      string
	parserProvider string
	parserModel    string
	parserKey      string
	ocrProvider    string
	store          bool
}

func newParseCmd(root *rootOptions) *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse <path|url|s3://bucket/key>",
		Short: "Run the extraction pipeline on one document and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := common.WithRequestID(cmd.Context(), "cli")

			req := opts.request(cfg, args[0])

			if !opts.store {
				a, err := app.NewWithStore(ctx, cfg, nil, logger)
				if err != nil {
					return err
				}
				out, err := a.Parser.Parse(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			rec, out, err := a.Processor.Run(ctx, req)
			if err != nil {
				if rec != nil {
					return fmt.Errorf("record %s: %w", rec.ID, err)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"id": rec.ID, "result": out})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.store, "store", false, "persist the result as a health record")
	return cmd
}

func (o *parseOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.visionProvider, "vision", "", "vision provider (default DEFAULT_VISION_PROVIDER)")
	f.StringVar(&o.visionModel, "vision-model", "", "vision model id")
	f.StringVar(&o.visionKey, "vision-key", "", "vision API key")
	f.StringVar(&o.parserProvider, "parser", "", "document parser provider (default DEFAULT_PARSER_PROVIDER)")
	f.StringVar(&o.parserModel, "parser-model", "", "document parser model id")
	f.StringVar(&o.parserKey, "parser-key", "", "document parser API key")
	f.StringVar(&o.ocrProvider, "ocr", "", "OCR provider (default: the parser)")
}

// request builds the provider selection, filling in the configured defaults.
func (o *parseOptions) request(cfg *common.Config, ref string) pipeline.Request {
	req := pipeline.Request{
		Ref:            ref,
		VisionProvider: o.visionProvider,
		VisionModel:    o.visionModel,
		VisionAPIKey:   o.visionKey,
		ParserProvider: o.parserProvider,
		ParserModel:    o.parserModel,
		ParserAPIKey:   o.parserKey,
		OCRProvider:    o.ocrProvider,
	}
	if req.VisionProvider == "" {
		req.VisionProvider = cfg.Pipeline.DefaultVisionProvider
	}
	if req.ParserProvider == "" {
		req.ParserProvider = cfg.Pipeline.DefaultParserProvider
	}
	return req
}

func newProvidersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the OCR, document and vision providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.NewWithStore(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.Registry.List(cmd.Context()))
		},
	}
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		out   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write completed health records to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.Exporter.ExportXLSX(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.Info("export written", "path", out, "bytes", len(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "health-records.xlsx", "output XLSX path")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records (0 for the store default)")
	return cmd
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the health record schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			// opening a SQL store applies the schema
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			a.Close()
			logger.Info("store ready", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func newDBHealthCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check that the record store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Records.Ping(ctx); err != nil {
				return fmt.Errorf("store health: FAIL (%w)", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store health: OK (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall timeout")
	return cmd
}

// newOCRCmd runs only the OCR step, which helps when tuning page attribution.
func newOCRCmd(root *rootOptions) *cobra.Command {
	var (
		name   string
		model  string
		apiKey string
		words  bool
	)
	cmd := &cobra.Command{
		Use:   "ocr <path|url|s3://bucket/key>",
		Short: "OCR one document with a single provider and print the words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.NewWithStore(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			if name == "" {
				name = cfg.Pipeline.DefaultParserProvider
			}
			p, err := a.Registry.OCR(name)
			if err != nil {
				return err
			}
			doc, err := a.Loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := p.OCR(cmd.Context(), doc, provider.Options{Model: model, APIKey: apiKey})
			if err != nil {
				return err
			}
			if !words {
				for i := range res.Pages {
					res.Pages[i].Words = nil
				}
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&name, "provider", "", "OCR provider (default DEFAULT_PARSER_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "model id")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key")
	cmd.Flags().BoolVar(&words, "words", true, "include word boxes")
	return cmd
}

// newBatchCmd parses every document under a directory into the store and
// writes the completed records to a workbook.
func newBatchCmd(root *rootOptions) *cobra.Command {
	opts := &parseOptions{}
	var (
		dir         string
		out         string
		concurrency int
		hidden      bool
	)
	cmd := &cobra.Command{
		Use:   "batch --dir <directory>",
		Short: "Parse every checkup document in a directory and export the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "health-records.xlsx")
			}
			ctx := common.WithRequestID(cmd.Context(), "batch")

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			tmpl := opts.request(cfg, "")
			if err := pipeline.CheckProviders(a.Registry, tmpl); err != nil {
				return err
			}
			results, stats, err := ingest.NewDirectoryIngestor(a.Processor, logger).IngestDirectory(ctx, dir, ingest.Options{
				SkipHidden:  !hidden,
				Concurrency: concurrency,
				Template:    tmpl,
			})
			if err != nil {
				return err
			}

			b, err := a.Exporter.ExportXLSX(ctx, int(stats.Succeeded))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			w := cmd.OutOrStdout()
			for _, r := range results {
				switch {
				case r.Deduplicated:
					fmt.Fprintf(w, "DUP   %s\n", r.Path)
				case r.Err != "":
					fmt.Fprintf(w, "FAIL  %s: %s\n", r.Path, r.Err)
				default:
					fmt.Fprintf(w, "OK    %s (%s)\n", r.Path, r.RecordID)
				}
			}
			fmt.Fprintf(w, "Batch processing complete!\n")
			fmt.Fprintf(w, "- Files matched: %d\n", stats.Matched)
			fmt.Fprintf(w, "- Files processed: %d\n", stats.Succeeded)
			fmt.Fprintf(w, "- Duplicates skipped: %d\n", stats.Deduplicated)
			fmt.Fprintf(w, "- Failures: %d\n", stats.Failed)
			fmt.Fprintf(w, "- Output: %s\n", out)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "directory to process (required)")
	cmd.Flags().StringVar(&out, "out", "", "output XLSX path (default: health-records.xlsx next to the directory)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "documents parsed at once")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "include hidden files and directories")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
