package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epifield/outbreak-cli/internal/analysis"
	"github.com/epifield/outbreak-cli/internal/fetcher"
	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/report"
	"github.com/epifield/outbreak-cli/internal/store"
	"github.com/epifield/outbreak-cli/internal/study"
	"github.com/epifield/outbreak-cli/internal/survey"
)

var (
	analyzeInput   string
	analyzeSheet   string
	analyzeStudy   string
	analyzeTable   string
	analyzeCSV     string
	analyzeChart   string
	analyzeNoStore bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full exposure analysis pipeline",
	Long: `Reads the questionnaire table, cleans and validates the matched pairs,
fits a conditional logistic regression per food, and writes the
odds-ratio table, CSV export, and chart.

Examples:
  # Analyze the built-in banquet outbreak study layout
  outbreak-cli analyze --input survey.xlsx

  # Custom study definition, no run persistence
  outbreak-cli analyze --input survey.csv --study study.yaml --no-store`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		def, err := resolveStudyAt(analyzeStudy)
		if err != nil {
			return err
		}

		input := analyzeInput
		if input == "" {
			input = cfg.Input.Path
		}
		if input == "" {
			return eris.New("analyze: no input file (set --input or input.path)")
		}

		summaries, strata, err := runPipeline(ctx, def, input)
		if err != nil {
			return err
		}

		if !analyzeNoStore {
			if err := persistRun(ctx, def.Name, input, strata, summaries); err != nil {
				return err
			}
		}

		return writeReports(summaries)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "path to questionnaire file (.xlsx or .csv)")
	analyzeCmd.Flags().StringVar(&analyzeSheet, "sheet", "", "workbook sheet name (default: first sheet)")
	analyzeCmd.Flags().StringVar(&analyzeStudy, "study", "", "path to YAML study definition (default: built-in)")
	analyzeCmd.Flags().StringVar(&analyzeTable, "table-out", "", "write the text table to file (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeCSV, "csv-out", "", "write the summary CSV to file")
	analyzeCmd.Flags().StringVar(&analyzeChart, "chart-out", "", "write the odds-ratio chart to file (.png/.svg/.pdf)")
	analyzeCmd.Flags().BoolVar(&analyzeNoStore, "no-store", false, "skip persisting the run")
	rootCmd.AddCommand(analyzeCmd)
}

// runPipeline executes import, cleaning, selection, reshape, and the
// per-food modeling stage. Returns the summary rows and stratum count.
func runPipeline(ctx context.Context, def study.Definition, input string) ([]model.FoodSummary, int, error) {
	sheet := analyzeSheet
	if sheet == "" {
		sheet = cfg.Input.Sheet
	}

	rows, err := fetcher.ReadTable(input, fetcher.XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, 0, eris.Wrap(err, "analyze: read input")
	}
	zap.L().Info("analyze: imported table", zap.String("path", input), zap.Int("rows", len(rows)))

	raw, err := survey.Clean(rows, def)
	if err != nil {
		return nil, 0, err
	}
	records, err := survey.Select(raw, def)
	if err != nil {
		return nil, 0, err
	}
	long, err := survey.Reshape(records, def)
	if err != nil {
		return nil, 0, err
	}
	zap.L().Info("analyze: reshaped exposures",
		zap.Int("participants", len(records)),
		zap.Int("foods", len(def.Foods)),
		zap.Int("long_rows", len(long)),
	)

	analyzer := analysis.New(def, analysis.Config{
		ConfidenceLevel: cfg.Analysis.ConfidenceLevel,
		Concurrency:     cfg.Analysis.Concurrency,
	})
	summaries, err := analyzer.Run(ctx, long)
	if err != nil {
		return nil, 0, err
	}

	return summaries, len(records) / 2, nil
}

// persistRun records the run and its summary rows in the configured store.
func persistRun(ctx context.Context, studyName, input string, strata int, summaries []model.FoodSummary) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.CreateRun(ctx, studyName, input)
	if err != nil {
		return err
	}
	if err := st.CompleteRun(ctx, run.ID, strata, summaries); err != nil {
		return err
	}

	zap.L().Info("analyze: run persisted", zap.String("run_id", run.ID))
	return nil
}

// writeReports renders the table, CSV, and chart outputs.
func writeReports(summaries []model.FoodSummary) error {
	table := report.RenderTable(summaries)
	tablePath := analyzeTable
	if tablePath == "" {
		tablePath = cfg.Output.TablePath
	}
	if tablePath != "" {
		if err := os.WriteFile(tablePath, []byte(table), 0o644); err != nil {
			return eris.Wrap(err, "analyze: write table")
		}
	} else {
		fmt.Print(table)
	}

	csvPath := analyzeCSV
	if csvPath == "" {
		csvPath = cfg.Output.CSVPath
	}
	if csvPath != "" {
		if err := report.WriteCSV(summaries, csvPath); err != nil {
			return err
		}
		zap.L().Info("analyze: csv written", zap.String("path", csvPath))
	}

	chartPath := analyzeChart
	if chartPath == "" {
		chartPath = cfg.Output.ChartPath
	}
	if chartPath != "" {
		if err := report.WriteChart(summaries, chartPath); err != nil {
			return err
		}
		zap.L().Info("analyze: chart written", zap.String("path", chartPath))
	}

	return nil
}

// resolveStudyAt loads the study definition from the given path, the
// configured study file, or the built-in default.
func resolveStudyAt(path string) (study.Definition, error) {
	if path == "" {
		path = cfg.Input.StudyFile
	}
	if path == "" {
		return study.Default(), nil
	}
	return study.Load(path)
}

// openStore builds the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("analyze: unknown store driver %q", cfg.Store.Driver)
	}
}
