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
)

// Initialize runs the application startup sequence on a validated config:
// build the provider, connect once and, when EnableMigrateOnStartup is set,
// apply migrations. On error the manager is already disconnected.
func Initialize(ctx context.Context, cfg *Config, opts ...ProviderOption) (*Provider, AbstractDatabaseManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	provider := NewProvider(cfg, opts...)
	manager := NewDatabaseManager(provider)

	if err := manager.Connect(ctx); err != nil {
		manager.Disconnect()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.DataMigrateConfig.EnableMigrateOnStartup {
		if err := manager.RunMigrations(ctx); err != nil {
			manager.Disconnect()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	provider.logger.Info("Database initialization completed!")
	return provider, manager, nil
}
