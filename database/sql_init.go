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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	commonSeedDir      = "common"
	defaultSeedOrder   = 999
	defaultSQLRootPath = "configs/sql"
)

var seedOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SQLInitManager executes seed SQL files: <root>/common first, then
// <root>/environments/<environment>, each ordered by its numeric prefix.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	sqlRootPath string
	logger      Logger
}

// SQLFileInfo describes a SQL file to be executed during initialization.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// ExecutionResult contains the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Error        error
	Duration     time.Duration
	RowsAffected int64
}

// NewSQLInitManager creates a seeder for environment. When db is a *bun.DB
// each file runs in its own transaction; any other IDB (a bun.Tx) is used as
// is.
func NewSQLInitManager(db bun.IDB, environment string, logger Logger) *SQLInitManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &SQLInitManager{
		db:          db,
		environment: environment,
		sqlRootPath: defaultSQLRootPath,
		logger:      logger,
	}
}

func (s *SQLInitManager) SetSQLRootPath(path string) {
	s.sqlRootPath = path
}

// ExecuteInitialization runs all discovered SQL files and stops at the first
// failing one.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) error {
	s.logger.Info("Starting SQL initialization", "environment", s.environment, "sql_path", s.sqlRootPath)

	files, err := s.GetSQLFiles()
	if err != nil {
		return fmt.Errorf("failed to get SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil
	}

	for _, file := range files {
		result := s.executeFile(ctx, file)
		if result.Error != nil {
			s.logger.Error("SQL file execution failed", "file", result.File, "error", result.Error.Error())
			return fmt.Errorf("SQL file execution failed %s: %w", result.File, result.Error)
		}
		s.logger.Info("SQL file executed successfully",
			"file", result.File,
			"duration", result.Duration.String(),
			"rows_affected", result.RowsAffected,
		)
	}

	s.logger.Info("SQL initialization completed", "total_files", len(files), "environment", s.environment)
	return nil
}

// GetSQLFiles returns the files to execute in execution order. Missing
// directories are skipped.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	commonFiles, err := getFilesFromDir(filepath.Join(s.sqlRootPath, commonSeedDir), commonSeedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get common SQL files: %w", err)
	}
	var envFiles []SQLFileInfo
	if s.environment != "" {
		envFiles, err = getFilesFromDir(filepath.Join(s.sqlRootPath, "environments", s.environment), s.environment)
		if err != nil {
			return nil, fmt.Errorf("failed to get environment SQL files: %w", err)
		}
	}
	return append(commonFiles, envFiles...), nil
}

func getFilesFromDir(dir, environment string) ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SQLFileInfo{
			Path:        path,
			Name:        d.Name(),
			Order:       parseFileOrder(d.Name()),
			Environment: environment,
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func parseFileOrder(filename string) int {
	matches := seedOrderPattern.FindStringSubmatch(filename)
	if len(matches) > 1 {
		if order, err := strconv.Atoi(matches[1]); err == nil {
			return order
		}
	}
	return defaultSeedOrder
}

func (s *SQLInitManager) executeFile(ctx context.Context, file SQLFileInfo) ExecutionResult {
	start := time.Now()
	result := ExecutionResult{File: file.Path}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to read file: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	run := func(ctx context.Context, conn bun.IDB) error {
		var total int64
		for _, stmt := range statements {
			res, execErr := conn.ExecContext(ctx, stmt)
			if execErr != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, execErr)
			}
			if n, err := res.RowsAffected(); err == nil {
				total += n
			}
		}
		result.RowsAffected = total
		return nil
	}

	if db, ok := s.db.(*bun.DB); ok {
		result.Error = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return run(ctx, tx)
		})
	} else {
		result.Error = run(ctx, s.db)
	}
	result.Duration = time.Since(start)
	return result
}

// splitSQLStatements splits on semicolons outside quoted strings and drops
// "--" comments, whole-line or trailing.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder
	var quote rune

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" && stmt != ";" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if quote == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		runes := []rune(line)
	scan:
		for i, r := range runes {
			switch {
			case quote != 0:
				if r == quote {
					quote = 0
				}
			case r == '\'' || r == '"':
				quote = r
			case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
				break scan
			case r == ';':
				current.WriteRune(r)
				flush()
				continue
			}
			current.WriteRune(r)
		}
		current.WriteByte('\n')
	}
	flush()
	return statements
}
