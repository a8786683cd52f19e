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
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrNotInitialized is returned by manager operations that need a handle
// before one could be built.
var ErrNotInitialized = errors.New("database not initialized")

const missingURLReason = "DATABASE_URL is not set. Please create a .env.local file with DATABASE_URL. See .env.example for reference."

// ConfigurationError reports a startup configuration problem. It is never
// recovered locally: the process entry point exits on it.
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

func missingURLError() *ConfigurationError {
	return &ConfigurationError{Variable: EnvDatabaseURL, Reason: missingURLReason}
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	ConnectionErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoIndexErr:                  "no_index",
	NoColumnErr:                 "no_column",
	ExistIndexErr:               "exist_index",
	ExistColumnErr:              "exist_column",
	NoTableErr:                  "no_table",
	ExistTableErr:               "exist_table",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_constraint_violation",
	DataTruncatedErr:            "data_truncated",
	InvalidTypeCastErr:          "invalid_type_cast",
	ConnectionErr:               "connection",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return "unknown"
}

// ClassifyError maps a driver error onto an SQLError. The boolean is false
// when err is not recognizable as a database error at all.
func ClassifyError(err error) (bool, SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, fromSQLState(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, fromSQLState(pgErr.Code)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return true, fromMySQLNumber(mysqlErr.Number)
	}
	return fromMessage(err.Error())
}

func fromSQLState(code string) SQLError {
	switch code {
	case pgerrcode.UniqueViolation:
		return DuplicateKeyErr
	case pgerrcode.NotNullViolation:
		return NotNullViolationErr
	case pgerrcode.ForeignKeyViolation:
		return ForeignKeyViolationErr
	case pgerrcode.CheckViolation:
		return CheckConstraintViolationErr
	case pgerrcode.StringDataRightTruncationDataException:
		return DataTruncatedErr
	case pgerrcode.DatatypeMismatch, pgerrcode.InvalidTextRepresentation, pgerrcode.CannotCoerce:
		return InvalidTypeCastErr
	case pgerrcode.UndefinedTable:
		return NoTableErr
	case pgerrcode.UndefinedColumn:
		return NoColumnErr
	case pgerrcode.UndefinedObject:
		return NoIndexErr
	case pgerrcode.DuplicateTable:
		return ExistTableErr
	case pgerrcode.DuplicateColumn:
		return ExistColumnErr
	case pgerrcode.DuplicateObject:
		return ExistIndexErr
	}
	if pgerrcode.IsConnectionException(code) {
		return ConnectionErr
	}
	return UnknownErr
}

func fromMySQLNumber(n uint16) SQLError {
	switch n {
	case 1091:
		return NoIndexErr
	case 1054:
		return NoColumnErr
	case 1061:
		return ExistIndexErr
	case 1060:
		return ExistColumnErr
	case 1146:
		return NoTableErr
	case 1050:
		return ExistTableErr
	case 1062:
		return DuplicateKeyErr
	case 1048:
		return NotNullViolationErr
	case 1216, 1217, 1451, 1452:
		return ForeignKeyViolationErr
	case 3819:
		return CheckConstraintViolationErr
	case 1265, 1406:
		return DataTruncatedErr
	default:
		return UnknownErr
	}
}

// fromMessage covers drivers without a typed error, SQLite in particular.
func fromMessage(msg string) (bool, SQLError) {
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "no such index"):
		return true, NoIndexErr
	case strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate column name"):
		return true, ExistColumnErr
	case strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "datatype mismatch"):
		return true, InvalidTypeCastErr
	case strings.Contains(s, "connection refused"), strings.Contains(s, "bad connection"):
		return true, ConnectionErr
	}
	return false, UnknownErr
}
