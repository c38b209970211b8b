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
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/sqlharness/utils"
)

// Placeholder is the token ReplaceValuesAndExecuteScript substitutes.
const Placeholder = "$$"

// Manager owns at most one database connection. Calls are expected to be
// sequential; the mutex only guards the connection handle.
type Manager struct {
	config   *ConnectionConfig
	logger   Logger
	observer Observer
	catalog  *ScriptCatalog

	mu    sync.Mutex
	db    *bun.DB
	sqlDB *sql.DB
}

// NewManager returns an unconnected manager. A nil config uses
// DefaultConnectionConfig. Call Connect before executing scripts.
func NewManager(config *ConnectionConfig) *Manager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	cfg := config.withDefaults()
	logger := GetLogger()
	return &Manager{
		config:   cfg,
		logger:   logger,
		observer: NewLogObserver(logger),
		catalog:  NewScriptCatalog(cfg.ScriptsRoot),
	}
}

func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger()
	}
	m.logger = logger
}

// SetObserver replaces the step observer. Use Observers to keep several.
func (m *Manager) SetObserver(observer Observer) {
	if observer == nil {
		observer = Observers{}
	}
	m.observer = observer
}

// Config returns a copy of the effective configuration.
func (m *Manager) Config() ConnectionConfig { return *m.config }

// Catalog returns the script catalog rooted at the configured scripts root.
func (m *Manager) Catalog() *ScriptCatalog { return m.catalog }

// DB returns the Bun handle, or nil when not connected.
func (m *Manager) DB() *bun.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db
}

func (m *Manager) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx = m.observer.BeforeStep(ctx, name)
	start := time.Now()
	err := fn(ctx)
	m.observer.AfterStep(ctx, name, time.Since(start), err)
	return err
}

// Connect opens the connection, retrying every RetryInterval until it is
// live or RetryWindow has elapsed, in which case a *ConnectTimeoutError is
// returned. Connecting an already live manager is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	return m.step(ctx, StepConnect, m.connect)
}

func (m *Manager) connect(ctx context.Context) error {
	if err := m.config.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if m.pingLocked(ctx) == nil {
			return nil
		}
		m.releaseLocked()
	}

	window := m.config.RetryWindow
	deadline := time.Now().Add(window)
	var lastErr error
	attempts := 0
	for time.Now().Before(deadline) {
		attempts++
		m.logger.Debug("Attempting to connect to database", "target", m.config.String(), "attempt", attempts)

		err := m.openLocked(ctx)
		if err == nil {
			m.logger.Info("Database connected successfully", "target", m.config.String(), "attempts", attempts)
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("connect to database: %w", cerr)
		}
		lastErr = err
		m.logger.Warn("Connection attempt failed", "attempt", attempts, "error", err)

		wait := m.config.RetryInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect to database: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return &ConnectTimeoutError{Timeout: window, Attempts: attempts, Err: lastErr}
}

func (m *Manager) openLocked(ctx context.Context) error {
	sqlDB, db, err := openDB(m.config, m.logger)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return err
	}
	m.sqlDB, m.db = sqlDB, db
	return nil
}

func (m *Manager) pingLocked(ctx context.Context) error {
	if m.db == nil {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	return m.db.PingContext(pingCtx)
}

func (m *Manager) releaseLocked() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db, m.sqlDB = nil, nil
	return err
}

// IsConnected reports whether a connection exists and answers a ping.
func (m *Manager) IsConnected(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingLocked(ctx) == nil
}

// ExecuteScript runs the single statement stored at path. It fails fast
// with ErrNotConnected when there is no live connection. Row-returning
// statements yield their rows; anything else yields one status row.
func (m *Manager) ExecuteScript(ctx context.Context, path string) (Result, error) {
	var res Result
	err := m.step(ctx, StepExecuteScript, func(ctx context.Context) error {
		if !m.IsConnected(ctx) {
			return ErrNotConnected
		}
		query, err := m.catalog.Read(path)
		if err != nil {
			return newExecutionError(path, err)
		}
		if query == "" {
			return newExecutionError(path, ErrScriptEmpty)
		}
		m.logger.Info("Executing SQL", "script", path, "sql", query)
		res, err = m.run(ctx, query, true)
		if err != nil {
			m.logger.Error("Error executing script", "script", path, "error", err)
			return newExecutionError(path, err)
		}
		m.observer.Attach(ctx, "Query results", res.String())
		return nil
	})
	return res, err
}

// ExecuteSQL runs query on the current connection and returns its rows, or
// an empty result for statements that return none. It does not check that
// the connection is still alive.
func (m *Manager) ExecuteSQL(ctx context.Context, query string) (Result, error) {
	var res Result
	err := m.step(ctx, StepExecuteSQL, func(ctx context.Context) error {
		var err error
		res, err = m.run(ctx, query, false)
		return err
	})
	return res, err
}

// ReplaceValuesAndExecuteScript reads the script at path, substitutes each
// Placeholder occurrence with the next value and runs the result through
// ExecuteSQL. Unlike ExecuteScript it reconnects when not connected.
func (m *Manager) ReplaceValuesAndExecuteScript(ctx context.Context, path string, values []string) (Result, error) {
	var res Result
	err := m.step(ctx, StepReplaceValues, func(ctx context.Context) error {
		if !m.IsConnected(ctx) {
			if err := m.Connect(ctx); err != nil {
				return err
			}
		}
		query, err := m.catalog.Read(path)
		if err != nil {
			return newExecutionError(path, err)
		}
		if n := utils.CountToken(query, Placeholder); n > len(values) {
			m.logger.Warn("Script keeps unresolved placeholders", "script", path, "placeholders", n, "values", len(values))
		}
		query = utils.ReplaceString(query, Placeholder, values)
		m.observer.Attach(ctx, "Replaced String", query)

		res, err = m.ExecuteSQL(ctx, query)
		if err != nil {
			m.logger.Error("Error in value replacement", "script", path, "error", err)
			return newExecutionError(path, err)
		}
		return nil
	})
	return res, err
}

// ScriptPath resolves <scripts root>/<environment>/<name>.
func (m *Manager) ScriptPath(environment, name string) string {
	return m.catalog.Path(environment, name)
}

// ExecuteScriptByEnvironment runs ExecuteScript on the environment's copy of name.
func (m *Manager) ExecuteScriptByEnvironment(ctx context.Context, environment, name string) (Result, error) {
	var res Result
	err := m.step(ctx, StepExecuteByEnvironment, func(ctx context.Context) error {
		var err error
		res, err = m.ExecuteScript(ctx, m.ScriptPath(environment, name))
		return err
	})
	return res, err
}

// ReplaceValuesAndExecuteScriptByEnvironment is ReplaceValuesAndExecuteScript
// on the environment's copy of name.
func (m *Manager) ReplaceValuesAndExecuteScriptByEnvironment(ctx context.Context, environment, name string, values []string) (Result, error) {
	var res Result
	err := m.step(ctx, StepReplaceByEnvironment, func(ctx context.Context) error {
		var err error
		res, err = m.ReplaceValuesAndExecuteScript(ctx, m.ScriptPath(environment, name), values)
		return err
	})
	return res, err
}

// ScanScriptByEnvironment runs the environment's copy of name and scans its
// rows into dest, a pointer to a slice, using bun column mapping. When values
// are given each Placeholder is replaced in order first. Like ExecuteScript it
// fails fast with ErrNotConnected.
func (m *Manager) ScanScriptByEnvironment(ctx context.Context, environment, name string, values []string, dest interface{}) error {
	path := m.ScriptPath(environment, name)
	return m.step(ctx, StepScanByEnvironment, func(ctx context.Context) error {
		if !m.IsConnected(ctx) {
			return ErrNotConnected
		}
		query, err := m.catalog.Read(path)
		if err != nil {
			return newExecutionError(path, err)
		}
		if query == "" {
			return newExecutionError(path, ErrScriptEmpty)
		}
		if len(values) > 0 {
			query = utils.ReplaceString(query, Placeholder, values)
			m.observer.Attach(ctx, "Replaced String", query)
		}
		db := m.DB()
		if db == nil {
			return ErrNotConnected
		}
		// Without args bun leaves '?' in the script text alone.
		if err := db.NewRaw(query).Scan(ctx, dest); err != nil {
			m.logger.Error("Error scanning script", "script", path, "error", err)
			return newExecutionError(path, err)
		}
		m.observer.Attach(ctx, "Query results", fmt.Sprintf("%+v", reflect.Indirect(reflect.ValueOf(dest)).Interface()))
		return nil
	})
}

// CloseConnection closes a live connection. It is safe to call repeatedly;
// a handle that no longer answers is dropped without error.
func (m *Manager) CloseConnection() error {
	ctx := context.Background()
	return m.step(ctx, StepCloseConnection, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.db == nil {
			return nil
		}
		if m.pingLocked(ctx) != nil {
			_ = m.releaseLocked()
			return nil
		}
		if err := m.releaseLocked(); err != nil {
			m.logger.Error("Failed to close database connection", "error", err)
			return err
		}
		m.observer.Attach(ctx, "Log info", "Database connection closed")
		m.logger.Info("Database connection closed")
		return nil
	})
}

// Session connects, runs fn and closes the connection on every exit path.
func (m *Manager) Session(ctx context.Context, fn func(ctx context.Context, m *Manager) error) (err error) {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := m.CloseConnection(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, m)
}

// WithManager builds a manager for config and runs fn inside its Session.
func WithManager(ctx context.Context, config *ConnectionConfig, fn func(ctx context.Context, m *Manager) error) error {
	return NewManager(config).Session(ctx, fn)
}

// HealthCheck pings the connection and reports pool statistics.
func (m *Manager) HealthCheck(ctx context.Context) *HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}
	if m.db == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	err := m.pingLocked(ctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}
	if m.sqlDB != nil {
		stats := m.sqlDB.Stats()
		status.OpenConns = stats.OpenConnections
		status.InUse = stats.InUse
	}
	return status
}

func (m *Manager) run(ctx context.Context, query string, withStatus bool) (Result, error) {
	db := m.DB()
	if db == nil {
		return nil, ErrNotConnected
	}
	if returnsRows(query) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}

	r, err := db.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if !withStatus {
		return Result{}, nil
	}
	affected, err := r.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("read affected rows: %w", err)
	}
	return Result{statusRow(affected)}, nil
}

func scanRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := Result{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

var rowKeywords = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"TABLE":    true,
	"PRAGMA":   true,
}

var returningPattern = regexp.MustCompile(`(?i)\bRETURNING\b`)

// returnsRows reports whether query yields a result set, judged by its main
// verb. A leading WITH list is skipped so that CTE-wrapped DML is classified
// by the statement it wraps. DML with a RETURNING clause yields rows.
func returnsRows(query string) bool {
	q := stripLeadingComments(query)
	q = strings.TrimLeft(q, "( \t\r\n")
	keyword, rest := leadingWord(q)
	if keyword == "WITH" {
		keyword, rest = mainVerbAfterWith(rest)
		if keyword == "" {
			return true
		}
	}
	if rowKeywords[keyword] {
		return true
	}
	switch keyword {
	case "INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE":
		return returningPattern.MatchString(stripQuoted(rest))
	}
	return false
}

// stripQuoted drops the contents of quoted literals and identifiers.
func stripQuoted(q string) string {
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c != '\'' && c != '"' && c != '`' {
			b.WriteByte(c)
			continue
		}
		j := strings.IndexByte(q[i+1:], c)
		if j < 0 {
			break
		}
		b.WriteString("  ")
		i += j + 1
	}
	return b.String()
}

func leadingWord(q string) (string, string) {
	end := strings.IndexFunc(q, func(r rune) bool { return !isWordRune(r) })
	if end < 0 {
		end = len(q)
	}
	return strings.ToUpper(q[:end]), q[end:]
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_'
}

var mainVerbs = map[string]bool{
	"SELECT":  true,
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"MERGE":   true,
	"VALUES":  true,
	"TABLE":   true,
}

// mainVerbAfterWith walks past the CTE definitions following WITH and
// returns the first top-level statement verb with the text after it. Quoted
// text and parenthesised bodies are skipped. It returns "" when no verb is found.
func mainVerbAfterWith(q string) (string, string) {
	depth := 0
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := strings.IndexByte(q[i+1:], c)
			if j < 0 {
				return "", ""
			}
			i += j + 2
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case depth == 0 && isWordRune(rune(c)):
			word, rest := leadingWord(q[i:])
			if mainVerbs[word] {
				return word, rest
			}
			i += len(word)
		default:
			i++
		}
	}
	return "", ""
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"), strings.HasPrefix(q, "#"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = q[i+2:]
		default:
			return q
		}
	}
}
