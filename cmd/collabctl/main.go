// Package main is collabctl, a terminal client for live proposal editing.
// It talks to the collaboration server over REST and the websocket channel
// and keeps a local cache so work survives disconnects.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"collabsync/internal/client"
	"collabsync/internal/config"
)

var (
	configPath string
	logLevel   string

	cfg    *config.ClientConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "collabctl",
	Short: "Edit proposals collaboratively from the terminal",
	Long: `collabctl opens proposal documents on a collaboration server, streams
edits to everyone in the room, and manages comments and versions.

Edits are cached locally and pushed again when the connection returns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var err error
		cfg, err = config.LoadClient(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Client config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "collabctl", "config.toml")
	}
	return "collabctl.toml"
}

func newAPIClient() (*client.APIClient, error) {
	return client.NewAPIClient(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)
}
