package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talent-match/internal/app"
	"talent-match/internal/config"
	"talent-match/internal/logger"
)

const name = "talentctl"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           name,
		Short:         "talentctl ingests resumes and queries the candidate index from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talent-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
}

// setup loads the configuration, applies the logging flags and builds the services.
func setup(ctx context.Context, cmd *cobra.Command) (*app.App, *zap.Logger, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := v.BindPFlag("log.debug", cmd.Flags().Lookup("debug")); err != nil {
		return nil, nil, err
	}
	if err := v.BindPFlag("log.json", cmd.Flags().Lookup("json")); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
