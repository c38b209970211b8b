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
	"sort"
	"strings"
	"time"
)

// Supported database types.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// ConnectionConfig describes how to reach the database under test and how
// patiently to wait for it.
type ConnectionConfig struct {
	Type           string        `json:"type" yaml:"type"` // mysql、postgres、sqlite
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	DBName         string        `json:"dbname" yaml:"dbname"`
	SSLMode        string        `json:"sslmode" yaml:"sslmode"`
	Charset        string        `json:"charset" yaml:"charset"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	RetryWindow    time.Duration `json:"retry_window" yaml:"retry_window"`
	RetryInterval  time.Duration `json:"retry_interval" yaml:"retry_interval"`
	EnableQueryLog bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime  time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
	ScriptsRoot    string        `json:"scripts_root" yaml:"scripts_root"`
}

// DefaultConnectionConfig returns the connection defaults: a MySQL target,
// a 60 second retry window polled every 5 seconds, 5 seconds per attempt.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:           TypeMySQL,
		Charset:        "utf8mb4",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		RetryWindow:    60 * time.Second,
		RetryInterval:  5 * time.Second,
		SlowQueryTime:  2 * time.Second,
		ScriptsRoot:    "resources/sql",
	}
}

// NormalizedType folds driver aliases into one of the Type constants.
func (c ConnectionConfig) NormalizedType() string {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "", "mysql", "mariadb":
		return TypeMySQL
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "sqlite", "sqlite3":
		return TypeSQLite
	default:
		return strings.ToLower(c.Type)
	}
}

// EffectivePort returns Port, or the well-known port of the database type.
func (c ConnectionConfig) EffectivePort() int {
	if c.Port != 0 {
		return c.Port
	}
	switch c.NormalizedType() {
	case TypePostgres:
		return 5432
	case TypeMySQL:
		return 3306
	}
	return 0
}

// Validate reports every missing connection parameter at once.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return &ConfigError{Reason: "database configuration cannot be empty"}
	}
	typ := c.NormalizedType()
	switch typ {
	case TypeMySQL, TypePostgres:
		var missing []string
		if strings.TrimSpace(c.Host) == "" {
			missing = append(missing, "DB_HOST")
		}
		if p := c.EffectivePort(); p <= 0 || p > 65535 {
			missing = append(missing, "DB_PORT")
		}
		if c.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
		if c.Username == "" {
			missing = append(missing, "DB_USER")
		}
		if c.Password == "" {
			missing = append(missing, "DB_PASSWORD")
		}
		if len(missing) > 0 {
			return &ConfigError{Missing: missing}
		}
	case TypeSQLite:
		if c.DBName == "" {
			return &ConfigError{Missing: []string{"DB_NAME"}}
		}
	default:
		return &ConfigError{Reason: fmt.Sprintf("unsupported database type: %s, supported types: %v",
			c.Type, []string{TypeMySQL, TypePostgres, TypeSQLite})}
	}
	return nil
}

func (c *ConnectionConfig) withDefaults() *ConnectionConfig {
	out := *c
	def := DefaultConnectionConfig()
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.RetryWindow <= 0 {
		out.RetryWindow = def.RetryWindow
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = def.RetryInterval
	}
	if out.Charset == "" {
		out.Charset = def.Charset
	}
	return &out
}

// String renders the target without the password.
func (c *ConnectionConfig) String() string {
	if c.NormalizedType() == TypeSQLite {
		return fmt.Sprintf("%s://%s", TypeSQLite, c.DBName)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", c.NormalizedType(), c.Username, c.Host, c.EffectivePort(), c.DBName)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	OpenConns     int           `json:"open_conns"`
	InUse         int           `json:"in_use"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// StatusMessage is the message carried by status rows.
const StatusMessage = "Query executed successfully"

// Row maps column names to values. Text columns are returned as strings.
type Row map[string]any

// Result is the ordered outcome of one statement: its rows, or a single
// status row for statements that return none.
type Result []Row

// StatusRecord summarizes a statement that returned no rows.
type StatusRecord struct {
	Message      string `json:"message"`
	AffectedRows int64  `json:"affected_rows"`
}

func statusRow(affected int64) Row {
	return Row{"message": StatusMessage, "affected_rows": affected}
}

// Status decodes r as a status row.
func (r Row) Status() (StatusRecord, bool) {
	if len(r) != 2 {
		return StatusRecord{}, false
	}
	msg, ok := r["message"].(string)
	if !ok {
		return StatusRecord{}, false
	}
	n, ok := r["affected_rows"].(int64)
	if !ok {
		return StatusRecord{}, false
	}
	return StatusRecord{Message: msg, AffectedRows: n}, true
}

// Columns returns the column names of the first row, sorted.
func (res Result) Columns() []string {
	if len(res) == 0 {
		return nil
	}
	cols := make([]string, 0, len(res[0]))
	for k := range res[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// String renders res one row per line with sorted columns.
func (res Result) String() string {
	var b strings.Builder
	cols := res.Columns()
	for i, row := range res {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('{')
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", c, row[c])
		}
		b.WriteByte('}')
	}
	return b.String()
}
