package main

import (
	"fmt"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/config"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// addConfigFlag registers the --config flag shared by every command.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.DefaultPath, "path to omni config file")
}

// loadConfig reads .env, if present, and then the config file. A missing
// config file yields the defaults.
func loadConfig(configPath string) (*config.Config, error) {
	_ = godotenv.Load(".env")
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openGateway opens the configured store and wraps it in a gateway. The
// caller closes the returned store.
func openGateway(cfg *config.Config) (*persist.Gateway, kv.Store, error) {
	store, err := kv.Open(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	return persist.New(store, persist.Options{PresenceTTL: cfg.Presence.TTL}), store, nil
}
