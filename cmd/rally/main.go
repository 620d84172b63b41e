package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/rally/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	logLevel   = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:           "rally",
	Short:         "Keychain-backed Rally API key and request relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", configPath, err)
		}
		cfg = loaded
		applyLogLevel(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func applyLogLevel(c *config.Config) {
	lvl, err := c.Level()
	if err != nil {
		slog.Warn("ignoring invalid log level", "error", err)
	}
	logLevel.Set(lvl)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
