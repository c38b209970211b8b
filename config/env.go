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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrEnvFileNotFound = errors.New("environment file not found")

// EnvFilePath returns <dir>/<lower(environment)>.env.
func EnvFilePath(dir, environment string) string {
	return filepath.Join(dir, strings.ToLower(strings.TrimSpace(environment))+".env")
}

// LoadEnvironment prepares the process environment. In pipeline mode the
// variables already exported by the CI runner are used as they are;
// otherwise the environment's .env file is loaded, overriding existing
// values. The returned map is a snapshot of the resulting environment with
// HEADLESS set.
func LoadEnvironment(pipeline bool, environment, dir string, headless bool) (map[string]string, error) {
	if !pipeline {
		path := EnvFilePath(dir, environment)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrEnvFileNotFound, path)
			}
			return nil, fmt.Errorf("error loading environment variables: %w", err)
		}
		if err := godotenv.Overload(path); err != nil {
			return nil, fmt.Errorf("error loading environment variables from %s: %w", path, err)
		}
	}

	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	if len(vars) == 0 {
		return nil, errors.New("no environment variables found")
	}
	vars["HEADLESS"] = strconv.FormatBool(headless)
	return vars, nil
}

// ReadEnvFile parses a dotenv file without touching the process environment.
func ReadEnvFile(dir, environment string) (map[string]string, error) {
	return godotenv.Read(EnvFilePath(dir, environment))
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
