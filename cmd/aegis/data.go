package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/generator"
	aegiscsv "github.com/hed1ad/aegis/pkg/io/csv"
	"github.com/hed1ad/aegis/pkg/txn"
)

func generateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic labeled transaction dataset as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = cfg.Train.Data
			}
			rows, _ := cmd.Flags().GetInt("rows")
			if !cmd.Flags().Changed("rows") {
				rows = cfg.Train.Rows
			}
			seed, _ := cmd.Flags().GetInt64("seed")
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Train.Seed
			}
			if rows <= 0 {
				return fmt.Errorf("rows must be positive, got %d", rows)
			}

			w, err := aegiscsv.Create(out)
			if err != nil {
				return err
			}
			records := generator.New(generator.WithSeed(seed)).Generate(rows)
			if err := w.WriteAll(records); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			fraud := 0
			for _, r := range records {
				fraud += r.Label
			}
			a.log.Info().Str("path", out).Int("rows", rows).Int("fraud", fraud).Msg("dataset written")
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output CSV (default train.data)")
	cmd.Flags().IntP("rows", "n", 0, "Number of rows (default train.rows)")
	cmd.Flags().Int64("seed", 0, "Random seed (default train.seed)")

	return cmd
}

// readDataset loads every row of a CSV dataset, skipping malformed rows.
func readDataset(a *app, path string) ([]txn.Labeled, error) {
	r, err := aegiscsv.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	records, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if n := r.Skipped(); n > 0 {
		a.log.Warn().Int("skipped", n).Str("path", path).Msg("malformed rows dropped")
	}
	return records, nil
}
