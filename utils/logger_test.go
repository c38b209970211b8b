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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("nonsense"))
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("REGISTRY")
	b := NewLogger("REGISTRY")
	assert.Same(t, a, b)
	assert.True(t, SetLoggerLevel("REGISTRY", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("MISSING", "error"))
}

func TestConfigureLogLevelConcurrent(t *testing.T) {
	t.Cleanup(func() { ConfigureLogLevel("info") })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ConfigureLogLevel([]string{"debug", "error"}[i%2])
		}(i)
		go func(i int) {
			defer wg.Done()
			NewLogger(fmt.Sprintf("CONCURRENT-%d", i))
		}(i)
	}
	wg.Wait()

	ConfigureLogLevel("warn")
	for i := 0; i < 8; i++ {
		assert.Equal(t, logrus.WarnLevel, NewLogger(fmt.Sprintf("CONCURRENT-%d", i)).GetLevel())
	}
	assert.Equal(t, logrus.WarnLevel, NewLogger("CONCURRENT-LATE").GetLevel())
}

func TestLog4jFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 10}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local),
		Level:   logrus.InfoLevel,
		Message: "connected",
		Data:    logrus.Fields{"port": 3306, "host": "db"},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)
	line := string(b)
	assert.Contains(t, line, "2025-01-02 03:04:05.000")
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "  DATABASE : connected host=db port=3306\n")
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DATABASE"}
	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.ErrorLevel,
		Message: "failed",
		Data:    logrus.Fields{"error": errors.New("boom")},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "DATABASE", rec["model"])
	assert.Equal(t, "boom", rec["fields"].(map[string]interface{})["error"])
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("SQLHARNESS_TEST_BOOL", "true")
	t.Setenv("SQLHARNESS_TEST_BAD_BOOL", "maybe")
	t.Setenv("SQLHARNESS_TEST_SECONDS", "7")
	assert.True(t, EnvDefaultBool("SQLHARNESS_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("SQLHARNESS_TEST_BAD_BOOL", true))
	assert.Equal(t, "def", EnvDefaultString("SQLHARNESS_TEST_UNSET", "def"))
	assert.Equal(t, 7*time.Second, EnvDefaultSeconds("SQLHARNESS_TEST_SECONDS", time.Second))
	assert.Equal(t, time.Second, EnvDefaultSeconds("SQLHARNESS_TEST_UNSET", time.Second))
}
