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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
)

func TestQueryLogHookVerbose(t *testing.T) {
	t.Setenv(QueryLogEnv, "2")
	var buf bytes.Buffer
	h := NewQueryLogHook(&buf)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Contains(t, buf.String(), "SELECT 1")
	assert.Contains(t, buf.String(), "[SQL]")
}

func TestQueryLogHookFailuresOnly(t *testing.T) {
	t.Setenv(QueryLogEnv, "1")
	var buf bytes.Buffer
	h := NewQueryLogHook(&buf)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String())

	h.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "DELETE FROM nowhere",
		StartTime: time.Now(),
		Err:       errors.New("no such table: nowhere"),
	})
	assert.Contains(t, buf.String(), "DELETE FROM nowhere")
	assert.Contains(t, buf.String(), "no such table: nowhere")
}

func TestQueryLogHookDisabled(t *testing.T) {
	t.Setenv(QueryLogEnv, "0")
	var buf bytes.Buffer
	h := NewQueryLogHook(&buf).WithEnabled(true, true)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String())
}

type captureLogger struct {
	nopLogger
	warnings []string
}

func (c *captureLogger) Warn(msg string, _ ...interface{}) { c.warnings = append(c.warnings, msg) }

func TestSlowQueryHook(t *testing.T) {
	logger := &captureLogger{}
	h := &slowQueryHook{slowTime: 10 * time.Millisecond, logger: logger}

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, logger.warnings)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(-time.Second)})
	assert.Len(t, logger.warnings, 1)
}
