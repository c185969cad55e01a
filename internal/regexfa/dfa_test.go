// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package regexfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accepts(fa *DFA, word string) bool {
	q := fa.Start
	for i := 0; i < len(word); i++ {
		q = fa.Trans[q][word[i]]
	}
	return fa.Accept[q]
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		accept  []string
		reject  []string
	}{
		{
			name:    "literal concat",
			pattern: "abc",
			accept:  []string{"abc"},
			reject:  []string{"abd", "ab", "abcd"},
		},
		{
			name:    "alternation",
			pattern: "cat|dog",
			accept:  []string{"cat", "dog"},
			reject:  []string{"cow", "ca"},
		},
		{
			name:    "star",
			pattern: "ab*c",
			accept:  []string{"ac", "abc", "abbbbc"},
			reject:  []string{"abb", "a"},
		},
		{
			name:    "char class",
			pattern: "[a-c]x",
			accept:  []string{"ax", "bx", "cx"},
			reject:  []string{"dx", "ex"},
		},
		{
			name:    "negated class",
			pattern: "[^a-c]x",
			accept:  []string{"dx", "zx"},
			reject:  []string{"ax", "bx"},
		},
		{
			name:    "bounded repeat",
			pattern: "a{2,3}",
			accept:  []string{"aa", "aaa"},
			reject:  []string{"a", "aaaa"},
		},
		{
			name:    "anchors are no-ops",
			pattern: "^abc$",
			accept:  []string{"abc"},
			reject:  []string{"abcd"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fa, err := Compile(tc.pattern)
			require.NoError(t, err)
			for _, w := range tc.accept {
				assert.True(t, accepts(fa, w), "expected %q to be accepted", w)
			}
			for _, w := range tc.reject {
				assert.False(t, accepts(fa, w), "expected %q to be rejected", w)
			}
		})
	}
}

func TestCompileTotal(t *testing.T) {
	fa, err := Compile("ab")
	require.NoError(t, err)
	for q := 0; q < fa.NumStates; q++ {
		for b := 0; b < 256; b++ {
			target := fa.Trans[q][b]
			assert.GreaterOrEqual(t, target, 0)
			assert.Less(t, target, fa.NumStates)
		}
	}
}

func TestInvalidPattern(t *testing.T) {
	_, err := Compile("(abc")
	assert.Error(t, err)
}
