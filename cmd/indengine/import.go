package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trading-indicators/internal/store/csvfile"
	sqlitestore "trading-indicators/internal/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load bars from a CSV file into the SQLite history",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().String("csv", "", "CSV file with columns t,o,h,l,c[,v]")
	importCmd.Flags().String("db", "data/bars.db", "SQLite database")
	importCmd.Flags().String("symbol", "", "Symbol the bars belong to")
	importCmd.Flags().String("tf", "", "Timeframe of the bars, e.g. 1m")
	for _, f := range []string{"csv", "symbol", "tf"} {
		_ = importCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	csvPath, _ := cmd.Flags().GetString("csv")
	dbPath, _ := cmd.Flags().GetString("db")
	symbol, _ := cmd.Flags().GetString("symbol")
	tf, _ := cmd.Flags().GetString("tf")

	bars, err := csvfile.ReadFile(csvPath)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return errors.New("no bars in " + csvPath)
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		return err
	}
	defer w.Close()

	n, err := w.WriteBars(cmd.Context(), symbol, tf, bars)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d bars into %s (%s %s)\n", n, dbPath, symbol, tf)
	return nil
}
