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
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestInitializeRejectsMissingURL(t *testing.T) {
	c := qt.New(t)
	p, m, err := Initialize(context.Background(), DefaultConfig(), WithLogger(&recordingLogger{}))
	c.Assert(p, qt.IsNil)
	c.Assert(m, qt.IsNil)
	c.Assert(IsConfigurationError(err), qt.IsTrue)
}

func TestInitializeMigratesOnStartup(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	for _, migrate := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.ConnectionConfig = *sqliteConfig()
		cfg.DataMigrateConfig.EnableMigrateOnStartup = migrate
		logger := &recordingLogger{}

		p, m, err := Initialize(ctx, cfg, WithLogger(logger))
		c.Assert(err, qt.IsNil)
		c.Assert(p.State(), qt.Equals, StateReady)

		h, err := p.Handle()
		c.Assert(err, qt.IsNil)
		exists, err := h.DB().NewSelect().
			TableExpr("sqlite_master").
			Where("type = 'table' AND name = 'bun_migrations'").
			Exists(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(exists, qt.Equals, migrate)
		c.Assert(logger.messages("info"), qt.Contains, "Database initialization completed!")
		c.Assert(m.Disconnect(), qt.IsNil)
	}
}

func TestInitializeUnreachable(t *testing.T) {
	c := qt.New(t)
	cfg := DefaultConfig()
	cfg.ConnectionConfig.URL = "postgres://prism@127.0.0.1:1/prism?sslmode=disable"

	_, _, err := Initialize(context.Background(), cfg, WithLogger(&recordingLogger{}))
	c.Assert(err, qt.ErrorMatches, "failed to connect to database: database connection test failed: .*")
	c.Assert(IsConfigurationError(err), qt.IsFalse)
	_, kind := ClassifyError(err)
	c.Assert(kind, qt.Equals, ConnectionErr)
}
