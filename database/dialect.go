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
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// Postgres driver choices for DATABASE_DRIVER.
const (
	DriverPQ  = "pq"
	DriverPgx = "pgx"
)

// target is a resolved DATABASE_URL: which database/sql driver to open, with
// which DSN, and which Bun dialect builds queries for it.
type target struct {
	name       dialect.Name
	driverName string
	dsn        string
	newDialect func() schema.Dialect
}

func invalidURL(reason string) *ConfigurationError {
	return &ConfigurationError{Variable: EnvDatabaseURL, Reason: "DATABASE_URL " + reason}
}

func resolveTarget(cfg *ConnectionConfig) (*target, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, missingURLError()
	}
	if strings.HasPrefix(raw, "file:") {
		return sqliteTarget(raw), nil
	}

	// url.Parse errors echo the input, which carries credentials.
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return nil, invalidURL("is not a valid connection string")
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return postgresTarget(u, cfg)
	case "mysql":
		return mysqlTarget(u, cfg)
	case "sqlite", "sqlite3":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		if path == "" {
			return nil, invalidURL("has no sqlite database path")
		}
		if path == ":memory:" {
			path = "file::memory:?cache=shared"
		} else if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		return sqliteTarget(path), nil
	default:
		return nil, invalidURL(fmt.Sprintf("uses unsupported scheme %q, supported: postgres, mysql, sqlite", u.Scheme))
	}
}

func postgresTarget(u *url.URL, cfg *ConnectionConfig) (*target, error) {
	var driverName string
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverPQ, "postgres":
		driverName = "postgres"
	case DriverPgx:
		driverName = "pgx"
	default:
		return nil, &ConfigurationError{
			Variable: EnvDatabaseDriver,
			Reason:   fmt.Sprintf("DATABASE_DRIVER %q is not supported, use %q or %q", cfg.Driver, DriverPQ, DriverPgx),
		}
	}

	q := u.Query()
	if q.Get("connect_timeout") == "" && cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	dsn := *u
	dsn.RawQuery = q.Encode()

	return &target{
		name:       dialect.PG,
		driverName: driverName,
		dsn:        dsn.String(),
		newDialect: func() schema.Dialect { return pgdialect.New() },
	}, nil
}

func mysqlTarget(u *url.URL, cfg *ConnectionConfig) (*target, error) {
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return nil, invalidURL("has no mysql database name")
	}

	if u.Hostname() == "" {
		return nil, invalidURL("has no mysql host")
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(u.Hostname(), port)
	if u.User != nil {
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
	}
	mc.DBName = dbName
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range u.Query() {
		if len(v) > 0 {
			mc.Params[k] = v[0]
		}
	}

	return &target{
		name:       dialect.MySQL,
		driverName: "mysql",
		dsn:        mc.FormatDSN(),
		newDialect: func() schema.Dialect { return mysqldialect.New() },
	}, nil
}

func sqliteTarget(dsn string) *target {
	return &target{
		name:       dialect.SQLite,
		driverName: sqliteshim.ShimName,
		dsn:        dsn,
		newDialect: func() schema.Dialect { return sqlitedialect.New() },
	}
}
