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

import "strings"

// ReplaceString substitutes token in src. A []string replaces successive
// occurrences, one per element, leaving any extra occurrences untouched; a
// plain string replaces every occurrence.
//
//	ReplaceString("A B C D", "B", []string{"X", "Y", "Z"}) // "A X C D"
//	ReplaceString("Hello, World!", "World", "Universe")    // "Hello, Universe!"
func ReplaceString[R string | []string](src, token string, r R) string {
	switch v := any(r).(type) {
	case []string:
		return ReplaceSequential(src, token, v)
	case string:
		return ReplaceAll(src, token, v)
	}
	return src
}

// ReplaceAll replaces every occurrence of token with value.
func ReplaceAll(src, token, value string) string {
	if token == "" {
		return src
	}
	return strings.ReplaceAll(src, token, value)
}

// ReplaceSequential replaces the first remaining occurrence of token with
// each value in order. Replaced text is never rescanned.
func ReplaceSequential(src, token string, values []string) string {
	if token == "" || len(values) == 0 {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	rest := src
	for _, v := range values {
		i := strings.Index(rest, token)
		if i < 0 {
			break
		}
		b.WriteString(rest[:i])
		b.WriteString(v)
		rest = rest[i+len(token):]
	}
	b.WriteString(rest)
	return b.String()
}

// CountToken reports how many non-overlapping occurrences of token src holds.
func CountToken(src, token string) int {
	if token == "" {
		return 0
	}
	return strings.Count(src, token)
}
