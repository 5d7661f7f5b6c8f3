package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/model"
)

func trainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the feature codec, isolation forest and autoencoder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			data, _ := cmd.Flags().GetString("data")
			if data == "" {
				data = cfg.Train.Data
			}
			out, _ := cmd.Flags().GetString("artifacts")
			if out == "" {
				out = cfg.Artifacts
			}

			records, err := readDataset(a, data)
			if err != nil {
				return err
			}

			bundle, report, err := model.Train(a.context(cmd.Context()), records, trainConfig(*cfg))
			if err != nil {
				return err
			}
			if err := bundle.Save(out); err != nil {
				return err
			}
			a.log.Info().Str("dir", out).Str("version", bundle.Version).Msg("artifacts saved")

			printReport(os.Stdout, report)
			return nil
		},
	}

	cmd.Flags().String("data", "", "Training CSV (default train.data)")
	cmd.Flags().String("artifacts", "", "Artifact directory (default artifacts)")

	return cmd
}

func evaluateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a labeled CSV with saved artifacts and print a confusion matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			data, _ := cmd.Flags().GetString("data")
			if data == "" {
				data = cfg.Train.Data
			}

			bundle, err := model.Load(cfg.Artifacts)
			if err != nil {
				return err
			}
			ens, err := model.NewEnsemble(bundle, thresholds(cfg.Thresholds))
			if err != nil {
				return err
			}
			records, err := readDataset(a, data)
			if err != nil {
				return err
			}

			c, ok := model.Evaluate(ens, records)
			if !ok {
				return fmt.Errorf("%s carries no labels", data)
			}
			printConfusion(os.Stdout, c)
			return nil
		},
	}

	cmd.Flags().String("data", "", "Labeled CSV (default train.data)")

	return cmd
}

func printReport(w io.Writer, r model.Report) {
	fmt.Fprintf(w, "Rows:        %d\n", r.Rows)
	fmt.Fprintf(w, "Features:    %d (%s)\n", len(r.Features), strings.Join(r.Features, ", "))
	fmt.Fprintf(w, "Duration:    %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "IF offset:   %.6f\n", r.ForestOffset)
	fmt.Fprintf(w, "AE MSE mean: %.6f\n", r.AEMSEMean)
	fmt.Fprintf(w, "AE MSE p95:  %.6f\n", r.AEMSEP95)
	if r.Confusion != nil {
		printConfusion(w, *r.Confusion)
	}
}

func printConfusion(w io.Writer, c model.Confusion) {
	fmt.Fprintf(w, "\n            pred=0  pred=1\n")
	fmt.Fprintf(w, "label=0  %8d %7d\n", c.TN, c.FP)
	fmt.Fprintf(w, "label=1  %8d %7d\n", c.FN, c.TP)
	fmt.Fprintf(w, "Precision: %.3f  Recall: %.3f", c.Precision(), c.Recall())
	if c.Errors > 0 {
		fmt.Fprintf(w, "  (%d unscored)", c.Errors)
	}
	fmt.Fprintln(w)
}
