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
	"strings"
	"testing"

	"pgregory.net/rapid"
)

const propToken = "$$"

func TestReplaceSequentialConsumesOnePlaceholderPerValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := rapid.StringMatching(`[a-c $]{0,24}`).Draw(t, "src")
		values := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,5}`), 0, 6).Draw(t, "values")

		before := CountToken(src, propToken)
		out := ReplaceSequential(src, propToken, values)

		want := before - len(values)
		if want < 0 {
			want = 0
		}
		if got := CountToken(out, propToken); got != want {
			t.Fatalf("ReplaceSequential(%q, %q) left %d placeholders, want %d (out %q)", src, values, got, want, out)
		}
	})
}

func TestReplaceSequentialIgnoresExcessValues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := rapid.StringMatching(`[a-c $]{0,24}`).Draw(t, "src")
		values := rapid.SliceOfN(rapid.StringMatching(`[a-z$]{0,5}`), 0, 8).Draw(t, "values")

		n := CountToken(src, propToken)
		if len(values) <= n {
			return
		}
		if a, b := ReplaceSequential(src, propToken, values), ReplaceSequential(src, propToken, values[:n]); a != b {
			t.Fatalf("excess values changed the output: %q vs %q", a, b)
		}
	})
}

func TestReplaceStringSingleValueMatchesReplaceAll(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := rapid.String().Draw(t, "src")
		token := rapid.StringN(1, 3, -1).Draw(t, "token")
		value := rapid.String().Draw(t, "value")

		if got, want := ReplaceString(src, token, value), strings.ReplaceAll(src, token, value); got != want {
			t.Fatalf("ReplaceString(%q, %q, %q) = %q, want %q", src, token, value, got, want)
		}
	})
}
