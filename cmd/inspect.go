package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epifield/outbreak-cli/internal/fetcher"
	"github.com/epifield/outbreak-cli/internal/survey"
)

var (
	inspectInput string
	inspectSheet string
	inspectStudy string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Import and clean the questionnaire without modeling",
	Long: `Runs only the import and cleaning stages and prints the cleaned
participant records as JSON. Useful for verifying the matching and the
sentinel recoding before a full analysis.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		def, err := resolveStudyAt(inspectStudy)
		if err != nil {
			return err
		}

		if inspectInput == "" {
			return eris.New("inspect: no input file")
		}

		rows, err := fetcher.ReadTable(inspectInput, fetcher.XLSXOptions{SheetName: inspectSheet})
		if err != nil {
			return eris.Wrap(err, "inspect: read input")
		}

		raw, err := survey.Clean(rows, def)
		if err != nil {
			return err
		}
		records, err := survey.Select(raw, def)
		if err != nil {
			return err
		}

		zap.L().Info("inspect: cleaned table",
			zap.Int("participants", len(records)),
			zap.Int("strata", len(records)/2),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectInput, "input", "", "path to questionnaire file (.xlsx or .csv)")
	inspectCmd.Flags().StringVar(&inspectSheet, "sheet", "", "workbook sheet name (default: first sheet)")
	inspectCmd.Flags().StringVar(&inspectStudy, "study", "", "path to YAML study definition (default: built-in)")
	_ = inspectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(inspectCmd)
}
