// Package migrations holds the Postgres schema for the user store.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners.
var FS = migrationFS

// Migrations is the bun/migrate registry for the auth schema.
var Migrations = migrate.NewMigrations()

const (
	tableName = "auth_bun_migrations"
	locksName = "auth_bun_migration_locks"
)

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic(fmt.Sprintf("migrations: discover: %v", err))
	}
}

// NewMigrator returns a migrator bound to db using auth-specific bookkeeping
// tables so it can share a database with other bun users.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations,
		migrate.WithTableName(tableName),
		migrate.WithLocksTableName(locksName),
	)
}

// Run applies pending migrations under the migration lock.
func Run(ctx context.Context, db *bun.DB, log logrus.FieldLogger) error {
	if db == nil {
		return fmt.Errorf("migrations: nil db")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := NewMigrator(db)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("migrations: lock: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			log.WithError(err).Warn("migrations: unlock failed")
		}
	}()
	group, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrations: migrate: %w", err)
	}
	if group.IsZero() {
		log.Debug("migrations: schema up to date")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations: applied")
	return nil
}
