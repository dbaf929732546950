package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trading-indicators/config"
	"trading-indicators/internal/model"
	"trading-indicators/internal/store/csvfile"
	sqlitestore "trading-indicators/internal/store/sqlite"
)

// barInput selects where an offline command reads its bars from.
type barInput struct {
	csvPath string
	dbPath  string
	symbol  string
	tf      string
	after   int64
}

func (in *barInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.csvPath, "csv", "", "CSV file with columns t,o,h,l,c[,v]")
	cmd.Flags().StringVar(&in.dbPath, "db", "", "SQLite database with a bars table")
	cmd.Flags().StringVar(&in.symbol, "symbol", "", "Symbol to read from --db")
	cmd.Flags().StringVar(&in.tf, "tf", "", "Timeframe to read from --db (default: the spec's)")
	cmd.Flags().Int64Var(&in.after, "after", 0, "Only bars with T greater than this (unix ms, --db only)")
}

func (in *barInput) load(ctx context.Context, tf string) ([]model.Bar, error) {
	switch {
	case in.csvPath != "" && in.dbPath != "":
		return nil, errors.New("use either --csv or --db")
	case in.csvPath != "":
		return csvfile.ReadFile(in.csvPath)
	case in.dbPath != "":
		if in.symbol == "" {
			return nil, errors.New("--symbol is required with --db")
		}
		if in.tf != "" {
			tf = in.tf
		}
		r, err := sqlitestore.NewReader(in.dbPath)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ReadBars(ctx, in.symbol, tf, in.after)
	default:
		return nil, errors.New("one of --csv or --db is required")
	}
}

// parseOneSpec parses a single inline spec.
func parseOneSpec(s string) (model.Spec, error) {
	specs, err := config.ParseSpecs(s)
	if err != nil {
		return model.Spec{}, err
	}
	if len(specs) != 1 {
		return model.Spec{}, fmt.Errorf("expected one spec, got %d", len(specs))
	}
	return specs[0], nil
}
