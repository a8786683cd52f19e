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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

type defaultDatabaseManager struct {
	provider        *Provider
	config          *Config
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	lastError       error
	healthStatus    *HealthStatus
	reconnectTries  int
	stopHealthCheck chan struct{}
	healthCheckOnce sync.Once
	stopOnce        sync.Once
}

// NewDatabaseManager returns a manager operating on the handle of p.
func NewDatabaseManager(p *Provider) AbstractDatabaseManager {
	cfg := p.Config()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &defaultDatabaseManager{
		provider:        p,
		config:          cfg,
		logger:          p.logger,
		healthStatus:    &HealthStatus{},
		stopHealthCheck: make(chan struct{}),
	}
}

func (dm *defaultDatabaseManager) handle() (*Handle, error) {
	h, err := dm.provider.Handle()
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Connect builds the handle if needed and verifies it with one ping bounded
// by ConnectTimeout.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	h, err := dm.handle()
	if err != nil {
		return err
	}

	timeout := dm.config.ConnectionConfig.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pingErr := h.Ping(ctxTimeout)

	dm.mu.Lock()
	if pingErr != nil {
		dm.lastError = pingErr
		dm.mu.Unlock()
		return fmt.Errorf("database connection test failed: %w", pingErr)
	}
	dm.connected = true
	dm.lastError = nil
	dm.reconnectTries = 0
	dm.mu.Unlock()

	dm.log().Info("Database connected successfully", "dialect", h.Dialect().String())
	return nil
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.stopOnce.Do(func() { close(dm.stopHealthCheck) })

	dm.mu.Lock()
	dm.connected = false
	dm.mu.Unlock()
	return dm.provider.Close()
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	h, err := dm.handle()
	if err != nil {
		return err
	}
	return h.Ping(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	h, err := dm.handle()
	if err != nil {
		return nil
	}
	return h.DB()
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	h, err := dm.handle()
	if err != nil {
		status.LastError = err.Error()
		dm.record(status, err)
		return status
	}
	status.Dialect = h.Dialect().String()

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	err = h.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := h.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConns

	dm.record(status, err)
	return status
}

func (dm *defaultDatabaseManager) record(status *HealthStatus, err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.healthStatus = status
	dm.lastError = err
	dm.connected = status.Connected
}

// StartHealthCheck runs HealthCheck every HealthCheckInterval until
// Disconnect. It is a no-op when the interval is not positive or the loop is
// already running.
func (dm *defaultDatabaseManager) StartHealthCheck() {
	interval := dm.config.ConnectionConfig.HealthCheckInterval
	if interval <= 0 {
		return
	}
	dm.healthCheckOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
					status := dm.HealthCheck(ctx)
					cancel()
					if !status.Healthy && dm.config.ConnectionConfig.EnableReconnect {
						dm.handleReconnect()
					}
				case <-dm.stopHealthCheck:
					return
				}
			}
		}()
	})
}

// handleReconnect retries a ping; database/sql redials broken connections by
// itself, so the handle is never replaced.
func (dm *defaultDatabaseManager) handleReconnect() {
	cc := dm.config.ConnectionConfig
	for {
		dm.mu.Lock()
		if dm.reconnectTries >= cc.MaxReconnectTries {
			tries := dm.reconnectTries
			dm.mu.Unlock()
			dm.log().Error("Max reconnect attempts reached, stopping", "tries", tries)
			return
		}
		dm.reconnectTries++
		try := dm.reconnectTries
		dm.mu.Unlock()

		dm.log().Info("Starting database reconnect", "try", try)
		select {
		case <-time.After(cc.ReconnectInterval):
		case <-dm.stopHealthCheck:
			return
		}

		if err := dm.Connect(context.Background()); err != nil {
			dm.log().Error("Reconnect failed", "error", err, "try", try)
			continue
		}
		dm.log().Info("Reconnect succeeded")
		return
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	h, err := dm.handle()
	if err != nil {
		return &DBStats{}
	}
	return h.Stats()
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context) error {
	h, err := dm.handle()
	if err != nil {
		return err
	}
	return NewMigrationManager(h.DB(), dm.log(), dm.config).RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) InitData(ctx context.Context) error {
	h, err := dm.handle()
	if err != nil {
		return err
	}
	init := dm.config.DataInitConfig
	sqlManager := NewSQLInitManager(h.DB(), init.Environment, dm.log())
	if init.Filepath != "" {
		sqlManager.SetSQLRootPath(init.Filepath)
	}
	return sqlManager.ExecuteInitialization(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

func (dm *defaultDatabaseManager) log() Logger {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.logger
}
