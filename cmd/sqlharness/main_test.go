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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"DB_TYPE", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "SQL_SCRIPTS_FOLDER"} {
		t.Setenv(key, "")
	}
	write := func(name, body string) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write("config.yaml", fmt.Sprintf("ENVIRONMENT: rc\nSQL_SCRIPTS_FOLDER: %s\n", filepath.Join(dir, "sql")))
	write("rc.env", fmt.Sprintf("DB_TYPE=sqlite\nDB_NAME=%s\n", filepath.Join(dir, "rc.db")))
	write("sql/rc/01_numbers.sql", "SELECT 1 AS one, 'two' AS two")
	write("sql/rc/echo.sql", "SELECT '$$' AS value")
	write("sql/common/01_schema.sql", "CREATE TABLE flags (name TEXT PRIMARY KEY, enabled INTEGER);")
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlharness dev")
}

func TestScriptsCommand(t *testing.T) {
	dir := workspace(t)
	out, err := execute(t, "scripts", "--config", filepath.Join(dir, "config.yaml"), "--env-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "01_numbers.sql")
	assert.Contains(t, out, "echo.sql")
}

func TestRunCommand(t *testing.T) {
	dir := workspace(t)
	out, err := execute(t, "run", "echo.sql", "--value", "hello",
		"--config", filepath.Join(dir, "config.yaml"), "--env-dir", dir)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["value"])
}

func TestPingCommand(t *testing.T) {
	dir := workspace(t)
	out, err := execute(t, "ping", "--config", filepath.Join(dir, "config.yaml"), "--env-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"healthy": true`)
}

func TestRunCommandRequiresScript(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
}

func TestSeedCommand(t *testing.T) {
	dir := workspace(t)
	out, err := execute(t, "seed", "--config", filepath.Join(dir, "config.yaml"), "--env-dir", dir)
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	assert.Contains(t, results[0]["file"], "01_schema.sql")
}
