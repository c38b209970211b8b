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
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// CommonScripts is the folder whose scripts run before every environment's own.
const CommonScripts = "common"

// SeedResult is the outcome of running one script file.
type SeedResult struct {
	File         string        `json:"file"`
	Statements   int           `json:"statements"`
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
}

// SeedEnvironment runs every script under common/ and then under the
// environment folder, in NN_ order. Each file runs in its own transaction,
// split into statements on trailing semicolons. The first failing file
// stops the run; results of the files before it are returned with the error.
func (m *Manager) SeedEnvironment(ctx context.Context, environment string) ([]SeedResult, error) {
	var results []SeedResult
	err := m.step(ctx, StepSeedEnvironment, func(ctx context.Context) error {
		if !m.IsConnected(ctx) {
			return ErrNotConnected
		}
		db := m.DB()

		files, err := m.seedFiles(environment)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			m.logger.Info("No SQL files found to execute", "environment", environment)
			return nil
		}

		for _, file := range files {
			res, err := m.seedFile(ctx, db, file)
			if err != nil {
				m.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
				return newExecutionError(file.Path, err)
			}
			m.logger.Info("SQL file executed successfully",
				"file", res.File, "statements", res.Statements,
				"rows_affected", res.RowsAffected, "duration", res.Duration.Round(time.Millisecond))
			results = append(results, res)
		}
		m.observer.Attach(ctx, "Seeded files", fmt.Sprintf("%d files for %s", len(results), environment))
		return nil
	})
	return results, err
}

func (m *Manager) seedFiles(environment string) ([]ScriptFile, error) {
	var files []ScriptFile
	for _, dir := range []string{CommonScripts, environment} {
		list, err := m.catalog.List(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, list...)
		if environment == CommonScripts {
			break
		}
	}
	return files, nil
}

func (m *Manager) seedFile(ctx context.Context, db *bun.DB, file ScriptFile) (SeedResult, error) {
	start := time.Now()
	res := SeedResult{File: file.Path}

	content, err := m.catalog.Read(file.Path)
	if err != nil {
		return res, fmt.Errorf("failed to read file: %w", err)
	}
	statements := SplitStatements(content)
	res.Statements = len(statements)
	if len(statements) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			n, _ := r.RowsAffected()
			res.RowsAffected += n
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

// SplitStatements breaks a script into statements ending in ';'. Blank lines
// and whole-line '--' comments are dropped and each statement is joined onto
// one line. A trailing statement without ';' is kept.
func SplitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	flush()
	return statements
}
