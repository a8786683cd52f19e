/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager applies versioned migrations, recording each applied
// version in the bun_migrations table.
type MigrationManager struct {
	db       *bun.DB
	logger   Logger
	config   *Config
	registry *ModelRegistry
	extra    []MigrationItem
}

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:bun_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

func NewMigrationManager(db *bun.DB, logger Logger, cfg *Config) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MigrationManager{
		db:       db,
		logger:   logger,
		config:   cfg,
		registry: defaultRegistry,
	}
}

// SetRegistry replaces the default model registry.
func (mm *MigrationManager) SetRegistry(r *ModelRegistry) {
	mm.registry = r
}

// Register appends application migrations; they run after the built-in ones
// in version order.
func (mm *MigrationManager) Register(items ...MigrationItem) {
	mm.extra = append(mm.extra, items...)
}

// RunMigrations creates the tracking table and applies every migration whose
// version has not been recorded yet.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return ErrNotInitialized
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		SetSQLSilent(true)
		defer SetSQLSilent(false)
	}

	if _, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range mm.migrations() {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed!")
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	migrations := []MigrationItem{{
		Version:     "001",
		Name:        "create_base_tables",
		Description: "Create tables of registered models",
		Up:          mm.createBaseTables,
	}}
	if mm.config.DataInitConfig.AutoInitOnMigration {
		migrations = append(migrations, MigrationItem{
			Version:     "002",
			Name:        "seed_initial_data",
			Description: "Seed initial data from SQL files",
			Up:          mm.seedInitialData,
		})
	}
	migrations = append(migrations, mm.extra...)
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

func (mm *MigrationManager) createBaseTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

func (mm *MigrationManager) seedInitialData(ctx context.Context, db bun.IDB) error {
	init := mm.config.DataInitConfig
	sqlManager := NewSQLInitManager(db, init.Environment, mm.logger)
	if init.Filepath != "" {
		sqlManager.SetSQLRootPath(init.Filepath)
	}
	if err := sqlManager.ExecuteInitialization(ctx); err != nil {
		return fmt.Errorf("SQL file initialization failed: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
