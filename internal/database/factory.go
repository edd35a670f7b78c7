package database

import (
	"fmt"

	"dstash/internal/config"
)

// NewFromConfig opens a database based on the database config type.
func NewFromConfig(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return Open(cfg.Path)
	case "memory":
		return Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
