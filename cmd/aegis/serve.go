package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/config"
	"github.com/hed1ad/aegis/pkg/metrics"
	"github.com/hed1ad/aegis/pkg/model"
	"github.com/hed1ad/aegis/pkg/server"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /predict from saved artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.Server.Addr
			}

			bundle, err := model.Load(cfg.Artifacts)
			if err != nil {
				return fmt.Errorf("load artifacts: %w", err)
			}
			ens, err := model.NewEnsemble(bundle, thresholds(cfg.Thresholds))
			if err != nil {
				return err
			}
			publishThresholds(ens.Thresholds())
			a.log.Info().
				Str("version", bundle.Version).
				Int("features", bundle.Width()).
				Float64("if_threshold", ens.Thresholds().IsolationForest).
				Float64("ae_threshold", ens.Thresholds().Autoencoder).
				Msg("model bundle loaded")

			a.loader.OnChange(func(c *config.Config) {
				t := thresholds(c.Thresholds)
				if t == ens.Thresholds() {
					return
				}
				if err := ens.SetThresholds(t); err != nil {
					a.log.Warn().Err(err).Msg("threshold reload skipped")
					return
				}
				publishThresholds(t)
				a.log.Info().
					Float64("if_threshold", t.IsolationForest).
					Float64("ae_threshold", t.Autoencoder).
					Msg("thresholds hot-reloaded")
			})
			stopWatch, err := a.loader.Watch()
			if err != nil {
				a.log.Warn().Err(err).Msg("config watcher unavailable (hot-reload disabled)")
			} else {
				defer stopWatch()
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			timeouts := server.Timeouts{
				Read:     cfg.Server.ReadTimeout,
				Write:    cfg.Server.WriteTimeout,
				Idle:     cfg.Server.IdleTimeout,
				Shutdown: cfg.Server.ShutdownTimeout,
			}
			if err := server.Serve(cmd.Context(), ln, server.New(ens, a.log), timeouts, a.log); err != nil {
				return err
			}
			a.log.Info().Msg("goodbye")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default server.addr)")

	return cmd
}

func publishThresholds(t model.Thresholds) {
	metrics.Thresholds.WithLabelValues("isolation_forest").Set(t.IsolationForest)
	metrics.Thresholds.WithLabelValues("autoencoder").Set(t.Autoencoder)
}
