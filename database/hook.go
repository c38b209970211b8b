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
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// QueryLogEnv toggles QueryLogHook at runtime: "1" logs failures, "2" logs
// every statement, "0" or empty disables it.
const QueryLogEnv = "SQLHARNESS_SQL_LOG"

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func colorWrap(s, code string) string { return code + s + ansiReset }

// QueryLogHook prints executed statements colored by operation.
type QueryLogHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

// NewQueryLogHook returns a hook writing to w, disabled until QueryLogEnv is set.
func NewQueryLogHook(w io.Writer) *QueryLogHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryLogHook{envName: QueryLogEnv, writer: w}
}

// WithEnabled forces the hook on; verbose includes successful statements.
func (h *QueryLogHook) WithEnabled(enabled, verbose bool) *QueryLogHook {
	h.enabled = enabled
	h.verbose = verbose
	return h
}

func (h *QueryLogHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled := h.enabled
	verbose := h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		colorWrap(fmt.Sprintf("%12s", "[SQL]"), ansiCyan),
		fmt.Sprintf("%14s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", colorByOperation(event.Operation(), event.Query),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func colorByOperation(operation, query string) string {
	switch strings.ToUpper(operation) {
	case "SELECT":
		return colorWrap(query, ansiGreen)
	case "INSERT":
		return colorWrap(query, ansiBlue)
	case "UPDATE":
		return colorWrap(query, ansiYellow)
	case "DELETE":
		return colorWrap(query, ansiMagenta)
	default:
		return colorWrap(query, ansiRed)
	}
}

type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	if d := time.Since(event.StartTime); d > h.slowTime {
		h.logger.Warn(color.YellowString("Database slow query detected"),
			"duration", d.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
