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
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// Handle is the process-wide database access handle: a database/sql pool and
// the Bun query builder layered over it. It is safe for concurrent use.
type Handle struct {
	db      *bun.DB
	config  ConnectionConfig
	dialect dialect.Name
	logger  Logger

	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg and builds a Handle. The pool connects lazily: Open does
// not talk to the database.
func Open(cfg *ConnectionConfig, logger Logger) (*Handle, error) {
	if cfg == nil {
		return nil, missingURLError()
	}
	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = GetLogger()
	}

	sqlDB, err := sql.Open(t.driverName, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection pool: %w", t.name, err)
	}
	configurePool(sqlDB, cfg)

	db := bun.NewDB(sqlDB, t.newDialect())
	db.AddQueryHook(NewConsoleQueryHook(os.Stderr))
	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: cfg.SlowQueryTime, logger: logger})
	}
	if models := RegisteredModelInstances(); len(models) > 0 {
		db.RegisterModel(models...)
	}

	logger.Info("Database handle ready", "dialect", t.name.String(), "driver", t.driverName,
		"max_open_conns", cfg.MaxOpenConns)
	return &Handle{
		db:      db,
		config:  *cfg,
		dialect: t.name,
		logger:  logger,
	}, nil
}

func configurePool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// DB returns the Bun query builder.
func (h *Handle) DB() *bun.DB {
	return h.db
}

// SQLDB returns the underlying database/sql pool.
func (h *Handle) SQLDB() *sql.DB {
	return h.db.DB
}

func (h *Handle) Dialect() dialect.Name {
	return h.dialect
}

// Config returns a copy of the connection config the handle was built from.
func (h *Handle) Config() ConnectionConfig {
	return h.config
}

// WithTimeout bounds ctx by the configured query timeout. A caller deadline
// that is already tighter is kept as is.
func (h *Handle) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := h.config.QueryTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Ping verifies connectivity, dialing if the pool has no open connection.
func (h *Handle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *Handle) Stats() *DBStats {
	stats := h.db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Close releases the pool. It is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.db.Close()
		if h.closeErr != nil {
			h.logger.Error("Failed to close database connection", "error", h.closeErr)
		} else {
			h.logger.Info("Database connection closed")
		}
	})
	return h.closeErr
}
