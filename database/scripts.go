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
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var scriptOrderPattern = regexp.MustCompile(`^(\d+)_`)

const unorderedScript = 999

// ScriptFile describes one .sql file under an environment directory.
type ScriptFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// Ordered reports whether the file name carries an NN_ prefix.
func (f ScriptFile) Ordered() bool { return f.Order != unorderedScript }

// ScriptCatalog locates scripts laid out as <root>/<environment>/<name>.
type ScriptCatalog struct {
	root string
}

func NewScriptCatalog(root string) *ScriptCatalog {
	return &ScriptCatalog{root: root}
}

func (c *ScriptCatalog) Root() string { return c.root }

// Path joins root, environment and name. It does not check that the file exists.
func (c *ScriptCatalog) Path(environment, name string) string {
	return filepath.Join(c.root, environment, name)
}

// Read returns the trimmed UTF-8 content of the script at path.
func (c *ScriptCatalog) Read(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimPrefix(string(content), "\ufeff")
	return strings.TrimSpace(text), nil
}

// Environments lists the environment directories under root.
func (c *ScriptCatalog) Environments() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts root %s: %w", c.root, err)
	}
	var envs []string
	for _, e := range entries {
		if e.IsDir() {
			envs = append(envs, e.Name())
		}
	}
	return envs, nil
}

// List returns the environment's .sql files ordered by their numeric NN_
// prefix (unprefixed files last), then by name. The environment must name
// a folder directly below the root.
func (c *ScriptCatalog) List(environment string) ([]ScriptFile, error) {
	if err := checkEnvironment(environment); err != nil {
		return nil, err
	}
	dir := filepath.Join(c.root, environment)
	var files []ScriptFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		files = append(files, ScriptFile{
			Path:        path,
			Name:        filepath.ToSlash(rel),
			Order:       parseScriptOrder(d.Name()),
			Environment: environment,
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts for %s: %w", environment, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func parseScriptOrder(filename string) int {
	matches := scriptOrderPattern.FindStringSubmatch(filename)
	if len(matches) > 1 {
		if n, err := strconv.Atoi(matches[1]); err == nil {
			return n
		}
	}
	return unorderedScript
}

func checkEnvironment(environment string) error {
	clean := filepath.Clean(strings.TrimSpace(environment))
	if clean == "." || clean == ".." || strings.ContainsAny(clean, `/\`) || filepath.IsAbs(clean) {
		return fmt.Errorf("%w: %q", ErrInvalidEnvironment, environment)
	}
	return nil
}
