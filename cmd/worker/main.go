package main

import (
	"fmt"
	"os"

	"uvian-worker/internal/config"
	"uvian-worker/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var (
	cfgPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:           "uvian-worker",
	Short:         "Queue worker that streams chat completions to subscribers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultCfg := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultCfg = v
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "path to YAML config file (env CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode (console logs, verbose payloads)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	return cfg, logger, nil
}
