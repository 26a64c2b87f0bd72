package main

import (
	"fmt"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/db"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Storage management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize local storage",
		Long:  "Creates the configured store. SQL backends get their tables migrated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st := cfg.Storage

	if st.Driver == "pebble" {
		store, err := kv.OpenPebble(st.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(out, "Pebble store ready at %s\n", st.Path)
		return nil
	}

	gormDB, err := db.Connect(st)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", st.Driver, err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables on %s\n", len(db.AllModels()), st.Driver)
	fmt.Fprintln(out, "\nOmni storage initialized successfully.")
	return nil
}
