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

package sqlharness

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/sqlharness/database"
)

// ScriptService runs environment-scoped scripts and scans their rows into T
// using bun column mapping.
type ScriptService[T any] interface {
	// Query runs the script and returns every row.
	Query(ctx context.Context, name string, values ...string) ([]T, error)

	// One runs the script and returns the first row, or nil when it has none.
	One(ctx context.Context, name string, values ...string) (*T, error)

	// Raw runs a literal query with bun argument binding.
	Raw(ctx context.Context, query string, args ...interface{}) ([]T, error)
}

type scriptServiceImpl[T any] struct {
	db          *database.Manager
	environment string
}

// NewScriptService binds a service to a manager and environment.
func NewScriptService[T any](db *database.Manager, environment string) ScriptService[T] {
	return &scriptServiceImpl[T]{db: db, environment: environment}
}

// For is NewScriptService on the harness's manager and environment.
func For[T any](h *Harness) ScriptService[T] {
	return NewScriptService[T](h.DB, h.Environment)
}

func (s *scriptServiceImpl[T]) handle() (*bun.DB, error) {
	db := s.db.DB()
	if db == nil {
		return nil, database.ErrNotConnected
	}
	return db, nil
}

// Query goes through the manager so the run is reported as a step.
func (s *scriptServiceImpl[T]) Query(ctx context.Context, name string, values ...string) ([]T, error) {
	var rows []T
	if err := s.db.ScanScriptByEnvironment(ctx, s.environment, name, values, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *scriptServiceImpl[T]) One(ctx context.Context, name string, values ...string) (*T, error) {
	rows, err := s.Query(ctx, name, values...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *scriptServiceImpl[T]) Raw(ctx context.Context, query string, args ...interface{}) ([]T, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := db.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("raw query failed: %w", err)
	}
	return rows, nil
}
