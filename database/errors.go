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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	// ErrMissingConfig is matched by every *ConfigError.
	ErrMissingConfig = errors.New("invalid database configuration")
	// ErrConnectTimeout is matched when the retry window elapses without a live connection.
	ErrConnectTimeout = errors.New("database connection timeout")
	// ErrNotConnected is returned when an operation requires a live connection.
	ErrNotConnected = errors.New("database connection is not established")
	// ErrScriptEmpty is returned for script files holding only whitespace.
	ErrScriptEmpty = errors.New("script file is empty")
	// ErrExecution is matched by every *ExecutionError.
	ErrExecution = errors.New("script execution failed")
	// ErrInvalidEnvironment is returned for environment names that do not
	// name a single folder below the scripts root.
	ErrInvalidEnvironment = errors.New("invalid script environment")
)

// ConfigError reports missing or unusable connection parameters.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return "missing database configuration: " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

func (e *ConfigError) Is(target error) bool { return target == ErrMissingConfig }

// ConnectTimeoutError is returned by Connect once the retry window is spent.
type ConnectTimeoutError struct {
	Timeout  time.Duration
	Attempts int
	Err      error
}

func (e *ConnectTimeoutError) Error() string {
	msg := fmt.Sprintf("failed to connect to database after %s (%d attempts)", e.Timeout, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnectTimeout}
	}
	return []error{ErrConnectTimeout, e.Err}
}

// ExecutionError wraps any failure while reading or running a statement.
type ExecutionError struct {
	Script string
	Kind   SQLError
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Script != "" {
		return fmt.Sprintf("script execution failed: %s: %v", e.Script, e.Err)
	}
	return fmt.Sprintf("script execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

func newExecutionError(script string, err error) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	_, kind := ClassifySQLError(err)
	return &ExecutionError{Script: script, Kind: kind, Err: err}
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
	SyntaxErr
	AccessDeniedErr
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
	SyntaxErr:                   "syntax",
	AccessDeniedErr:             "access_denied",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return sqlErrorNames[UnknownErr]
}

// ClassifySQLError maps driver errors from MySQL, Postgres and SQLite onto
// SQLError. is is false when err does not look like a database error.
func ClassifySQLError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		case 1064:
			return true, SyntaxErr
		case 1044, 1045:
			return true, AccessDeniedErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return true, NoColumnErr
		case "42704":
			return true, NoIndexErr
		case "42P01":
			return true, NoTableErr
		case "42P07":
			return true, ExistTableErr
		case "42701":
			return true, ExistColumnErr
		case "23505":
			return true, DuplicateKeyErr
		case "23502":
			return true, NotNullViolationErr
		case "23503":
			return true, ForeignKeyViolationErr
		case "23514":
			return true, CheckConstraintViolationErr
		case "22001":
			return true, DataTruncatedErr
		case "42804":
			return true, InvalidTypeCastErr
		case "42601":
			return true, SyntaxErr
		case "28000", "28P01", "42501":
			return true, AccessDeniedErr
		default:
			return true, UnknownErr
		}
	}
	s := strings.ToLower(err.Error())
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
	case strings.Contains(s, "syntax error"):
		return true, SyntaxErr
	case strings.Contains(s, "datatype mismatch"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}
