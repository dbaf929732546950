// cmd/indengine is the indicator engine: a live service consuming bar
// streams from Redis plus offline tools for batch runs, replay checks and
// SQLite imports.
//
// Usage:
//
//	indengine serve
//	indengine batch --spec "bb:period=20;k=2;source=close@1m" --csv bars.csv
//	indengine replay --spec "rsi:period=14;source=close@1m" --db data/bars.db --symbol AAPL
//	indengine import --csv bars.csv --db data/bars.db --symbol AAPL --tf 1m
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "indengine",
	Short: "Technical indicator compute engine",
	Long: `indengine computes technical indicators (Bollinger Bands, Wilder RSI, SMA,
EMA, ATR, Stochastic, ...) over OHLCV bar streams. Batch and incremental
evaluation produce identical results; partial bars yield provisional points
without committing state.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
