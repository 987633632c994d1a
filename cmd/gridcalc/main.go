// Package main provides the CLI entry point for gridcalc: load a CSV grid,
// evaluate formulas against it, and convert between interchange formats.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gridcalc"
)

var (
	logger  *zap.Logger
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridcalc",
		Short: "Headless spreadsheet calculation engine",
		Long: `gridcalc evaluates spreadsheet formulas over CSV grids: financial,
statistical, logical, text, date, lookup, and math functions with
cross-sheet references and circular-reference detection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			return err
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newConvertCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEvalCmd() *cobra.Command {
	var formulas []string
	cmd := &cobra.Command{
		Use:   "eval [input.csv]",
		Short: "Evaluate formulas against a CSV grid",
		Long: `Loads the CSV into a workbook (omit the argument for an empty grid),
evaluates each --formula in turn, and prints the results.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb := gridcalc.NewWorkbook()
			if len(args) == 1 {
				if err := loadCSV(wb, args[0]); err != nil {
					return err
				}
			}
			if len(formulas) == 0 {
				return fmt.Errorf("at least one --formula is required")
			}
			// formulas land in a scratch column beyond the populated grid
			rows, _ := wb.ActiveSheet().Dimensions()
			for i, formula := range formulas {
				address := fmt.Sprintf("ZZ%d", rows+i+1)
				if err := wb.SetFormula(address, formula); err != nil {
					return err
				}
				display, err := wb.DisplayValue(address)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", formula, display)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&formulas, "formula", "f", nil, "Formula to evaluate (repeatable)")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "convert [input.csv]",
		Short: "Convert a CSV grid to XLSX or a JSON state snapshot",
		Long:  `Loads the CSV, recalculates, and writes the grid in the format implied by the output extension (.xlsx or .json).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				return fmt.Errorf("--output is required")
			}
			wb := gridcalc.NewWorkbook()
			if err := loadCSV(wb, args[0]); err != nil {
				return err
			}

			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outputPath, err)
			}
			defer out.Close()

			switch strings.ToLower(filepath.Ext(outputPath)) {
			case ".xlsx":
				if err := wb.ExportXLSX(out); err != nil {
					return err
				}
			case ".json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(wb.ExportState()); err != nil {
					return fmt.Errorf("encode state: %w", err)
				}
			case ".csv":
				if err := wb.ExportCSV(out); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported output format %q (want .xlsx, .json, or .csv)", filepath.Ext(outputPath))
			}
			logger.Info("Converted grid",
				zap.String("input", args[0]),
				zap.String("output", outputPath))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	return cmd
}

func loadCSV(wb *gridcalc.Workbook, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	logger.Debug("Loading CSV", zap.String("path", path))
	if err := wb.ImportCSV(f); err != nil {
		return err
	}
	logger.Debug("Grid loaded", zap.Int("cells", wb.ActiveSheet().CellCount()))
	return nil
}
