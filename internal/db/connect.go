package db

import (
	"fmt"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/config"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector returns the gorm dialector for a SQL storage driver.
func Dialector(cfg config.StorageConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	case "mysql":
		dsn, err := MySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("db: driver %q is not a SQL driver", cfg.Driver)
}

// MySQLDSN validates dsn and forces parseTime so timestamps scan into
// time.Time.
func MySQLDSN(dsn string) (string, error) {
	c, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("db: parse mysql dsn: %w", err)
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}

// Connect opens a GORM connection for the configured SQL driver.
func Connect(cfg config.StorageConfig) (*gorm.DB, error) {
	d, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory sqlite database. The pool is pinned
// to one connection since every sqlite memory connection is its own database.
func OpenMemory() (*gorm.DB, error) {
	gdb, err := Connect(config.StorageConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: memory pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}
