package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change client settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set one setting and write the config file",
	Long: `Keys: server-url, token, user-id, user-name, cache-dir,
batch-interval, autosave-interval, request-timeout, reconnect-delay.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	token := "(unset)"
	if cfg.Token != "" {
		token = "(set)"
	}
	cmd.Printf("Config file:       %s\n", configPath)
	cmd.Printf("Server URL:        %s\n", cfg.ServerURL)
	cmd.Printf("Token:             %s\n", token)
	cmd.Printf("User:              %s (%s)\n", cfg.UserID, cfg.UserName)
	cmd.Printf("Cache dir:         %s\n", cfg.CacheDir)
	cmd.Printf("Batch interval:    %s\n", cfg.BatchInterval)
	cmd.Printf("Autosave interval: %s\n", cfg.AutosaveInterval)
	cmd.Printf("Request timeout:   %s\n", cfg.RequestTimeout)
	cmd.Printf("Reconnect delay:   %s\n", cfg.ReconnectDelay)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	setDuration := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
		*dst = d
		return nil
	}

	var err error
	switch key {
	case "server-url":
		cfg.ServerURL = value
	case "token":
		cfg.Token = value
	case "user-id":
		cfg.UserID = value
	case "user-name":
		cfg.UserName = value
	case "cache-dir":
		cfg.CacheDir = value
	case "batch-interval":
		err = setDuration(&cfg.BatchInterval)
	case "autosave-interval":
		err = setDuration(&cfg.AutosaveInterval)
	case "request-timeout":
		err = setDuration(&cfg.RequestTimeout)
	case "reconnect-delay":
		err = setDuration(&cfg.ReconnectDelay)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	if err != nil {
		return err
	}

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cmd.Printf("Updated %s\n", key)
	return nil
}
