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
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

var mysqlLoggerOnce sync.Once

// openDB opens a handle for cfg without touching the network; callers ping it.
// The pool is capped at one connection.
func openDB(cfg *ConnectionConfig, logger Logger) (*sql.DB, *bun.DB, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.NormalizedType() {
	case TypeMySQL:
		mysqlLoggerOnce.Do(func() { _ = mysql.SetLogger(mysqlLogger{}) })
		if sqlDB, err = sql.Open("mysql", MySQLDSN(cfg)); err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case TypePostgres:
		if sqlDB, err = sql.Open("postgres", PostgresDSN(cfg)); err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case TypeSQLite:
		if sqlDB, err = sql.Open(sqliteshim.ShimName, SQLiteDSN(cfg)); err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, &ConfigError{Reason: fmt.Sprintf("unsupported database type: %s", cfg.Type)}
	}
	if err != nil {
		return nil, nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(NewQueryLogHook(os.Stdout))
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: cfg.SlowQueryTime, logger: logger})
	}
	return sqlDB, db, nil
}

// MySQLDSN builds a go-sql-driver DSN with the per-attempt dial timeout.
func MySQLDSN(cfg *ConnectionConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.EffectivePort()))
	mc.DBName = cfg.DBName
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.ParseTime = true
	mc.Loc = time.Local
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc.Params = map[string]string{"charset": charset}
	return mc.FormatDSN()
}

// PostgresDSN builds a lib/pq URL; connect_timeout is whole seconds, minimum 1.
func PostgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	timeout := int(cfg.ConnectTimeout / time.Second)
	if timeout < 1 {
		timeout = 1
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(timeout))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.EffectivePort())),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN treats DBName as a file path, adding ".db" when it has no extension.
func SQLiteDSN(cfg *ConnectionConfig) string {
	name := cfg.DBName
	if name == ":memory:" || strings.HasPrefix(name, "file:") || filepath.Ext(name) != "" {
		return name
	}
	return name + ".db"
}
