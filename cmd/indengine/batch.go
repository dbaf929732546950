package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"trading-indicators/internal/indicator"
	"trading-indicators/internal/model"
)

var batchInput barInput

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute one indicator over a bar history and print the points as JSON",
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().String("spec", "", `Indicator spec, e.g. "bb:period=20;k=2;source=close@1m"`)
	batchCmd.Flags().Bool("pretty", false, "Indent the JSON output")
	_ = batchCmd.MarkFlagRequired("spec")
	batchInput.bind(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

type batchOutput struct {
	SpecID  string        `json:"specId"`
	Warmup  int           `json:"warmup"`
	Outputs []string      `json:"outputs"`
	Points  []model.Point `json:"points"`
}

func runBatch(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("spec")
	pretty, _ := cmd.Flags().GetBool("pretty")

	spec, err := parseOneSpec(raw)
	if err != nil {
		return err
	}
	bars, err := batchInput.load(cmd.Context(), spec.Timeframe)
	if err != nil {
		return err
	}

	out, err := computeBatch(indicator.NewDefaultRegistry(), spec, bars)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func computeBatch(reg *indicator.Registry, spec model.Spec, bars []model.Bar) (batchOutput, error) {
	warmup, err := reg.Warmup(spec)
	if err != nil {
		return batchOutput{}, err
	}
	outputs, err := reg.Outputs(spec)
	if err != nil {
		return batchOutput{}, err
	}
	points, err := reg.Batch(spec, bars)
	if err != nil {
		return batchOutput{}, err
	}
	return batchOutput{SpecID: spec.ID(), Warmup: warmup, Outputs: outputs, Points: points}, nil
}
