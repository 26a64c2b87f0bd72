package kv

import (
	"fmt"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/config"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/db"
)

// Open returns the backend selected by cfg. SQL backends are migrated.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "pebble":
		return OpenPebble(cfg.Path)
	case "sqlite", "mysql":
		gdb, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(gdb); err != nil {
			return nil, err
		}
		return NewGormStore(gdb), nil
	}
	return nil, fmt.Errorf("kv: unknown storage driver %q", cfg.Driver)
}
