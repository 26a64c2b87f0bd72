package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/auth"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/config"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/console"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/crosstab"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/metrics"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/mirror"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/web"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the console API server",
		Long:  "Serves the JSON API and event streams used by console tabs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

// buildModel returns the Gemini client, or llm.Unavailable when no API key
// is set.
func buildModel(cfg *config.Config) llm.Model {
	client, err := llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:         cfg.APIKey(),
		Model:          cfg.Model.Name,
		Endpoint:       cfg.Model.Endpoint,
		ThinkingBudget: cfg.Model.ThinkingBudget,
	})
	if err != nil {
		log.Printf("serve: %v (set %s); responses will fail", err, cfg.Model.APIKeyEnv)
		return llm.Unavailable{}
	}
	return client
}

// buildMirror returns the configured outbound mirrors.
func buildMirror(cfg *config.Config) (mirror.Notifier, error) {
	var targets mirror.Multi
	if t := cfg.Mirror.Slack; t.Enabled() {
		s, err := mirror.NewSlack(t.Token, t.Channel)
		if err != nil {
			return nil, err
		}
		targets = append(targets, s)
	}
	if t := cfg.Mirror.Discord; t.Enabled() {
		d, err := mirror.NewDiscord(t.Token, t.Channel)
		if err != nil {
			return nil, err
		}
		targets = append(targets, d)
	}
	if len(targets) == 0 {
		return mirror.Nop{}, nil
	}
	return targets, nil
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	sched, err := console.ParseSchedule(cfg.Presence.Schedule)
	if err != nil {
		return err
	}
	notifier, err := buildMirror(cfg)
	if err != nil {
		return err
	}

	store, err := kv.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	m := metrics.New()
	watched := kv.NewWatched(store)
	watched.Subscribe(func(c kv.Change) {
		m.StorageChange(persist.Family(c.Key), c.Deleted)
	})
	gateway := persist.New(watched, persist.Options{PresenceTTL: cfg.Presence.TTL})

	hub := crosstab.NewHub(cfg.Server.InboxSize)
	hub.OnDrop(func(string) { m.Dropped() })

	sessions := console.NewRegistry(console.Deps{
		Gateway:           gateway,
		Hub:               hub,
		Model:             buildModel(cfg),
		Mirror:            notifier,
		Metrics:           m,
		FragmentTimeout:   cfg.Model.FragmentTimeout,
		SystemInstruction: cfg.Model.SystemInstruction,
	})
	defer sessions.CloseAll()
	stopPresence := sessions.WatchPresence(watched)
	defer stopPresence()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	go console.RunHeartbeat(ctx, sessions, sched)

	return web.Start(ctx, web.StartOpts{
		Sessions:   sessions,
		Users:      auth.NewDirectory(gateway, 0),
		Gateway:    gateway,
		Metrics:    m,
		LoginRPS:   cfg.Auth.RPS,
		LoginBurst: cfg.Auth.Burst,
		Port:       cfg.Server.Port,
		Out:        cmd.OutOrStdout(),
	})
}
