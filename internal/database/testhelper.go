package database

import (
	"context"
	"fmt"

	"github.com/indentrecon/indentrecon/internal/config"
)

// NewInMemory opens a private in-memory database with every embedded
// migration applied. It is meant for tests and one-shot tooling.
func NewInMemory() (*DB, error) {
	db, err := Open(":memory:", config.DatabaseConfig{}, "")
	if err != nil {
		return nil, err
	}

	m, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	if _, err := m.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating in-memory database: %w", err)
	}
	return db, nil
}
