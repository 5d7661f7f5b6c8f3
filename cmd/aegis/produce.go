package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/generator"
	"github.com/hed1ad/aegis/pkg/ingest"
	aegiscsv "github.com/hed1ad/aegis/pkg/io/csv"
	"github.com/hed1ad/aegis/pkg/store"
	"github.com/hed1ad/aegis/pkg/txn"
)

func produceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Stream transactions through the scoring service into the result store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config().Ingest
			fl := cmd.Flags()
			if fl.Changed("url") {
				cfg.URL, _ = fl.GetString("url")
			}
			if fl.Changed("count") {
				cfg.Count, _ = fl.GetInt("count")
			}
			if fl.Changed("delay") {
				cfg.Delay, _ = fl.GetDuration("delay")
			}
			if fl.Changed("csv") {
				cfg.CSV, _ = fl.GetString("csv")
				cfg.Source = "csv"
			}
			dbPath := a.config().Store.Path
			if fl.Changed("db") {
				dbPath, _ = fl.GetString("db")
			}

			ctx := a.context(cmd.Context())

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			var src <-chan txn.Labeled
			switch cfg.Source {
			case "csv":
				r, err := aegiscsv.NewReader(cfg.CSV)
				if err != nil {
					return err
				}
				defer r.Close()
				if src, err = r.Stream(ctx); err != nil {
					return err
				}
			default:
				src = generator.New(generator.WithSeed(cfg.Seed)).Stream(ctx, cfg.Count)
			}

			a.log.Info().
				Str("url", cfg.URL).
				Str("source", cfg.Source).
				Dur("delay", cfg.Delay).
				Str("db", dbPath).
				Msg("producer starting")

			p := ingest.New(ingest.NewClient(cfg.URL, cfg.Timeout), st, ingest.Config{
				Delay:    cfg.Delay,
				StampNow: cfg.StampNow && cfg.Source != "csv",
			})
			stats, err := p.Run(ctx, src)
			fmt.Fprintf(cmd.OutOrStdout(), "delivered=%d failed=%d\n", stats.Delivered, stats.Failed)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("url", "", "Scoring endpoint (default ingest.url)")
	cmd.Flags().IntP("count", "n", 0, "Transactions to generate, negative for unbounded (default ingest.count)")
	cmd.Flags().Duration("delay", 0, "Pause between transactions (default ingest.delay)")
	cmd.Flags().String("csv", "", "Replay this CSV instead of generating")
	cmd.Flags().String("db", "", "Result store path (default store.path)")

	return cmd
}
