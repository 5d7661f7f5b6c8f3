package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/config"
	"github.com/hed1ad/aegis/pkg/dashboard"
	"github.com/hed1ad/aegis/pkg/store"
)

func dashboardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print live aggregates from the result store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			dbPath := cfg.Store.Path
			if cmd.Flags().Changed("db") {
				dbPath, _ = cmd.Flags().GetString("db")
			}
			wc := dashboard.WatchConfig{
				Interval:    cfg.Dashboard.Refresh,
				Limit:       cfg.Dashboard.Limit,
				StaticAfter: cfg.Dashboard.StaticAfter,
			}
			if cmd.Flags().Changed("refresh") {
				wc.Interval, _ = cmd.Flags().GetDuration("refresh")
			}
			if once, _ := cmd.Flags().GetBool("once"); once {
				wc.StaticAfter = -1
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := a.context(cmd.Context())
			if wc.StaticAfter < 0 {
				results, err := st.Recent(ctx, wc.Limit)
				if err != nil {
					return err
				}
				return dashboard.Render(os.Stdout, dashboard.Build(results))
			}
			_, err = dashboard.Watch(ctx, st, wc, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("db", "", "Result store path (default store.path)")
	cmd.Flags().Duration("refresh", 0, "Refresh interval (default dashboard.refresh)")
	cmd.Flags().Bool("once", false, "Render a single frame and exit")

	return cmd
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("init"); path != "" {
				if err := config.WriteDefault(path); err != nil {
					return err
				}
				a.log.Info().Str("path", path).Msg("default config written")
				return nil
			}
			data, err := config.Marshal(*a.config())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().String("init", "", "Write the default configuration to this path instead")

	return cmd
}
