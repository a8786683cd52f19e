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
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// EnvSQLLog switches the console query hook: "1" prints failed queries, "2"
// prints every query.
const EnvSQLLog = "DB_SQL_LOG"

var sqlSilent atomic.Bool

// SetSQLSilent mutes the console and slow query hooks, e.g. during migrations.
func SetSQLSilent(b bool) {
	sqlSilent.Store(b)
}

var (
	selectColor = color.New(color.FgGreen)
	insertColor = color.New(color.FgBlue)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgMagenta)
	otherColor  = color.New(color.FgRed)
	errColor    = color.New(color.BgRed, color.FgWhite)
	tagColor    = color.New(color.FgCyan)
)

// ConsoleQueryHook prints queries to a writer with per-operation colors.
type ConsoleQueryHook struct {
	envName string
	writer  io.Writer
}

var _ bun.QueryHook = (*ConsoleQueryHook)(nil)

// NewConsoleQueryHook writes to stderr when w is nil.
func NewConsoleQueryHook(w io.Writer) *ConsoleQueryHook {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleQueryHook{envName: EnvSQLLog, writer: w}
}

func (h *ConsoleQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *ConsoleQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if sqlSilent.Load() {
		return
	}
	mode := os.Getenv(h.envName)
	if mode == "" || mode == "0" {
		return
	}
	if mode != "2" {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		tagColor.Sprintf("%8s", "[SQL]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", errColor.Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func operationColor(op string) *color.Color {
	switch op {
	case "SELECT":
		return selectColor
	case "INSERT":
		return insertColor
	case "UPDATE":
		return updateColor
	case "DELETE":
		return deleteColor
	default:
		return otherColor
	}
}

// slowQueryHook warns through the database logger about successful queries
// slower than slowTime.
type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil || sqlSilent.Load() || h.logger == nil {
		return
	}
	if duration := time.Since(event.StartTime); duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"operation", event.Operation(),
			"query", event.Query,
		)
	}
}
