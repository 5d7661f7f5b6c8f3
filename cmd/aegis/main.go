// Command aegis generates transaction data, trains the fraud ensemble,
// serves it over HTTP, streams transactions through it and shows the
// results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hed1ad/aegis/pkg/config"
	"github.com/hed1ad/aegis/pkg/logger"
	"github.com/hed1ad/aegis/pkg/model"
)

var Version = "dev"

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	loader *config.Loader
	log    zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(&app{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "aegis",
		Short:         "Aegis - real-time card fraud scoring",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level")

	// Add subcommands
	rootCmd.AddCommand(generateCmd(a))
	rootCmd.AddCommand(trainCmd(a))
	rootCmd.AddCommand(evaluateCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(produceCmd(a))
	rootCmd.AddCommand(dashboardCmd(a))
	rootCmd.AddCommand(configCmd(a))

	return rootCmd
}

func (a *app) init() error {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	loader, err := config.NewLoader(a.configPath, bootLog)
	if err != nil {
		return err
	}
	cfg := loader.Config()

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log, err := logger.New(logger.Options{Level: level, Format: logger.Format(cfg.Log.Format), Out: os.Stderr})
	if err != nil {
		return err
	}

	loader.SetLogger(log)
	a.loader = loader
	a.log = log
	return nil
}

// config returns the current configuration.
func (a *app) config() *config.Config {
	return a.loader.Config()
}

// context attaches the configured logger to ctx.
func (a *app) context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}

func thresholds(c config.ThresholdConfig) model.Thresholds {
	return model.Thresholds{IsolationForest: c.IsolationForest, Autoencoder: c.Autoencoder}
}

func trainConfig(c config.Config) model.TrainConfig {
	t := c.Train
	return model.TrainConfig{
		TopCountries:    t.TopCountries,
		TopMerchants:    t.TopMerchants,
		Trees:           t.Trees,
		SampleSize:      t.SampleSize,
		Contamination:   t.Contamination,
		Hidden:          t.Hidden,
		Bottleneck:      t.Bottleneck,
		Epochs:          t.Epochs,
		BatchSize:       t.BatchSize,
		LearningRate:    t.LearningRate,
		Patience:        t.Patience,
		ValidationSplit: t.ValidationSplit,
		Seed:            t.Seed,
		Thresholds:      thresholds(c.Thresholds),
	}
}
