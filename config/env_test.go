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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("envs", "qa.env"), EnvFilePath("envs", "QA"))
	assert.Equal(t, "rc.env", EnvFilePath("", " rc "))
}

func TestLoadEnvironmentFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qa.env"),
		[]byte("DB_HOST=qa-db.internal\nSQLHARNESS_TEST_VAR=from-file\n"), 0o644))
	t.Setenv("SQLHARNESS_TEST_VAR", "from-process")
	t.Setenv("DB_HOST", "")

	vars, err := LoadEnvironment(false, "QA", dir, true)
	require.NoError(t, err)
	assert.Equal(t, "from-file", vars["SQLHARNESS_TEST_VAR"])
	assert.Equal(t, "from-file", os.Getenv("SQLHARNESS_TEST_VAR"))
	assert.Equal(t, "qa-db.internal", vars["DB_HOST"])
	assert.Equal(t, "true", vars["HEADLESS"])
}

func TestLoadEnvironmentMissingFile(t *testing.T) {
	_, err := LoadEnvironment(false, "staging", t.TempDir(), false)
	require.ErrorIs(t, err, ErrEnvFileNotFound)
}

func TestLoadEnvironmentPipeline(t *testing.T) {
	t.Setenv("SQLHARNESS_TEST_VAR", "from-runner")

	// no file needed in pipeline mode
	vars, err := LoadEnvironment(true, "prod", t.TempDir(), false)
	require.NoError(t, err)
	assert.Equal(t, "from-runner", vars["SQLHARNESS_TEST_VAR"])
	assert.Equal(t, "false", vars["HEADLESS"])
}

func TestReadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rc.env"), []byte("# comment\nA=1\nB=\"two words\"\n"), 0o644))

	vars, err := ReadEnvFile(dir, "rc")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two words"}, vars)
}
