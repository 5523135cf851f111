// Package main provides the geo engine command-line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var (
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "geo-engine-cli",
	Short: "Ask natural-language questions about places",
	Long: `geo-engine-cli runs spatial and semantic queries against a geographic
catalog, and manages the catalog the engine loads on startup.

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		} else if level == "info" {
			// Engine chatter would interleave with command output.
			level = "warn"
		}
		format := "console"
		if outputJSON {
			format = "json"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      format,
			Output:      os.Stderr,
			ServiceName: "geo-engine-cli",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: env vars only)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newSuggestCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newREPLCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildEngine creates the configured engine and, when a catalog is
// configured, loads it with a progress bar.
func buildEngine(ctx context.Context, ui *UI) (*engine.Engine, error) {
	eng, err := app.NewEngine(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Driver == "" {
		return eng, nil
	}

	summary, err := loadWithProgress(ctx, ui, eng)
	if err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(summary.Skipped) > 0 {
		ui.Warning("skipped %d invalid features: %s", len(summary.Skipped), strings.Join(summary.Skipped, ", "))
	}
	return eng, nil
}

func loadWithProgress(ctx context.Context, ui *UI, eng catalog.Ingester) (*catalog.LoadSummary, error) {
	var bar *mpb.Bar
	progress := func(done, total int) {
		if bar == nil {
			bar = ui.ProgressBar("catalog", int64(total))
		}
		if bar != nil {
			bar.SetCurrent(int64(done))
		}
	}

	summary, err := app.LoadCatalog(ctx, cfg, eng, logger, progress)
	if bar != nil {
		if err != nil {
			bar.Abort(false)
		}
		ui.Close()
	}
	return summary, err
}

func newQueryCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Run a natural-language query",
		Example: `  geo-engine-cli query "Find parks near San Francisco"
  geo-engine-cli query --json "Compare rainfall between Oakland and Sacramento"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ui := NewUI(outputJSON, noColor)
			eng, err := buildEngine(ctx, ui)
			if err != nil {
				return err
			}
			defer eng.Close()

			var spin *querySpinner
			if !outputJSON && IsTerminal() {
				spin = newQuerySpinner("Searching...")
			}
			qctx, qcancel := context.WithTimeout(ctx, timeout)
			defer qcancel()

			spin.Start()
			res := eng.ProcessQuery(qctx, strings.Join(args, " "))
			spin.Stop()

			if err := emit(ui, res, func() { renderResult(ui, res) }); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("query failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "query timeout")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <question>",
		Short: "Check whether a query would be accepted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := NewUI(outputJSON, noColor)
			eng, err := app.NewEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			v := eng.ValidateQuery(strings.Join(args, " "))
			return emit(ui, v, func() { renderValidation(ui, v) })
		},
	}
}

func newSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [text]",
		Short: "List example queries matching text",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := NewUI(outputJSON, noColor)
			eng, err := app.NewEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			suggestions := eng.GetSuggestions(strings.Join(args, " "))
			return emit(ui, suggestions, func() { renderSuggestions(ui, suggestions) })
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and engine counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ui := NewUI(outputJSON, noColor)
			eng, err := buildEngine(ctx, ui)
			if err != nil {
				return err
			}
			defer eng.Close()

			stats := eng.GetStats(ctx)
			return emit(ui, stats, func() { renderStats(ui, stats) })
		},
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the configured catalog and report what was indexed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if cfg.Catalog.Driver == "" {
				return fmt.Errorf("no catalog configured: set catalog.driver or CATALOG_URL")
			}

			ui := NewUI(outputJSON, noColor)
			eng, err := app.NewEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			summary, err := loadWithProgress(ctx, ui, eng)
			if err != nil {
				return err
			}

			return emit(ui, summary, func() {
				ui.Success("loaded %d features and %d documents in %s",
					summary.Features, summary.Documents, FormatDuration(time.Since(start)))
				for _, id := range summary.Skipped {
					ui.Warning("skipped feature %s", id)
				}
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		featuresPath  string
		documentsPath string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Write GeoJSON features and JSON documents into the catalog",
		Example: `  geo-engine-cli import --features parks.geojson --documents parks-docs.json
  cat docs.json | geo-engine-cli import --documents -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if featuresPath == "" && documentsPath == "" {
				return fmt.Errorf("nothing to import: pass --features and/or --documents")
			}
			ctx, cancel := signalContext()
			defer cancel()
			ui := NewUI(outputJSON, noColor)

			var features []spatial.Feature
			var skipped []string
			if featuresPath != "" {
				data, err := readFileOrStdin(featuresPath)
				if err != nil {
					return fmt.Errorf("read features: %w", err)
				}
				features, skipped, err = catalog.ParseGeoJSON(data)
				if err != nil {
					return err
				}
			}
			var docs []vectorstore.Document
			if documentsPath != "" {
				data, err := readFileOrStdin(documentsPath)
				if err != nil {
					return fmt.Errorf("read documents: %w", err)
				}
				if docs, err = readDocuments(data); err != nil {
					return err
				}
			}

			repo, closeDB, err := app.OpenCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			var bar *importBar
			if !outputJSON {
				bar = newImportBar(len(features)+len(docs), "importing", os.Stderr)
			}
			summary, err := importRecords(ctx, repo, features, docs, bar)
			if err != nil {
				return err
			}
			summary.Skipped = skipped

			return emit(ui, summary, func() {
				ui.Success("imported %d features and %d documents", summary.Features, summary.Documents)
				for _, s := range skipped {
					ui.Warning("skipped %s", s)
				}
			})
		},
	}

	cmd.Flags().StringVar(&featuresPath, "features", "", "GeoJSON FeatureCollection file (- for stdin)")
	cmd.Flags().StringVar(&documentsPath, "documents", "", "JSON documents file (- for stdin)")
	return cmd
}

func newREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive query session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ui := NewUI(outputJSON, noColor)
			eng, err := buildEngine(ctx, ui)
			if err != nil {
				return err
			}
			defer eng.Close()

			if !outputJSON {
				ui.Info("Type :help for commands, :quit to exit")
			}
			return runREPL(ctx, os.Stdin, ui, eng)
		},
	}
}
