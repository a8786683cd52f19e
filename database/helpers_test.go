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
	"os"
	"sync"
	"sync/atomic"
	"time"

	qt "github.com/frankban/quicktest"
)

var databaseEnvKeys = []string{
	EnvDatabaseURL, EnvDatabaseDriver, EnvConfigFile,
	"DB_MAX_IDLE_CONNS", "DB_MAX_OPEN_CONNS", "DB_MAX_RECONNECT_TRIES",
	"DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_CONNECT_TIMEOUT",
	"DB_QUERY_TIMEOUT", "DB_RECONNECT_INTERVAL", "DB_HEALTH_CHECK_INTERVAL",
	"DB_ENABLE_RECONNECT", "DB_ENABLE_QUERY_LOG", "DB_SLOW_QUERY_TIME_MS",
	"DB_MIGRATE_ON_STARTUP", "DB_SEED_ON_MIGRATION", "DB_SEED_ENV", "DB_SEED_PATH",
}

// unsetenv removes key for the duration of the test.
func unsetenv(c *qt.C, key string) {
	prev, ok := os.LookupEnv(key)
	c.Assert(os.Unsetenv(key), qt.IsNil)
	c.Cleanup(func() {
		if ok {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func clearDatabaseEnv(c *qt.C) {
	for _, key := range databaseEnvKeys {
		unsetenv(c, key)
	}
}

type logEntry struct {
	level  string
	msg    string
	fields []interface{}
}

// recordingLogger keeps every entry in memory.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) SetLevel(LogLevel) {}

func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.add("debug", msg, fields) }

func (l *recordingLogger) Info(msg string, fields ...interface{}) { l.add("info", msg, fields) }

func (l *recordingLogger) Warn(msg string, fields ...interface{}) { l.add("warn", msg, fields) }

func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.add("error", msg, fields) }

func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

var memoryDBSeq atomic.Int64

// memoryURL returns a private shared-cache in-memory SQLite URL.
func memoryURL() string {
	return fmt.Sprintf("file:prism_test_%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
}

func sqliteConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.URL = memoryURL()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.ConnMaxLifetime = 0
	cfg.ConnMaxIdleTime = 0
	cfg.QueryTimeout = 5 * time.Second
	cfg.SlowQueryTime = 0
	return cfg
}

// openSQLite opens a handle on a fresh in-memory database, closed on cleanup.
func openSQLite(c *qt.C) (*Handle, *recordingLogger) {
	logger := &recordingLogger{}
	h, err := Open(sqliteConfig(), logger)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { h.Close() })
	return h, logger
}
