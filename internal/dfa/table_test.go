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

package dfa

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fteproxy/fteproxy/internal/regexfa"
)

func buildTable(t *testing.T, pattern string, maxLen int) *Table {
	t.Helper()
	fa, err := regexfa.Compile(pattern)
	require.NoError(t, err)
	tbl, err := FromRegexFA(fa, maxLen)
	require.NoError(t, err)
	return tbl
}

func TestRankUnrankRoundTrip(t *testing.T) {
	tbl := buildTable(t, "[a-d]{4}", 4)

	n := tbl.WordsInSlice()
	require.Equal(t, int64(256), n.Int64())

	for i := int64(0); i < n.Int64(); i++ {
		c := big.NewInt(i)
		word, err := tbl.Unrank(c)
		require.NoError(t, err)
		require.Len(t, word, 4)

		rank, err := tbl.Rank(word)
		require.NoError(t, err)
		assert.Equal(t, c.Int64(), rank.Int64())
	}
}

func TestCapacityBound(t *testing.T) {
	tbl := buildTable(t, "[a-d]{4}", 4)
	capacity := tbl.Capacity()

	n := tbl.WordsInSlice()
	for i := int64(0); i < n.Int64(); i++ {
		word, err := tbl.Unrank(big.NewInt(i))
		require.NoError(t, err)
		rank, err := tbl.Rank(word)
		require.NoError(t, err)
		assert.Less(t, rank.BitLen(), capacity+1)
	}
}

func TestNotInLanguage(t *testing.T) {
	tbl := buildTable(t, "[a-d]{4}", 4)
	_, err := tbl.Rank([]byte("zzzz"))
	assert.ErrorIs(t, err, ErrNotInLanguage)

	_, err = tbl.Rank([]byte("abc"))
	assert.ErrorIs(t, err, ErrNotInLanguage)
}

func TestOutOfRange(t *testing.T) {
	tbl := buildTable(t, "[a-d]{4}", 4)
	_, err := tbl.Unrank(tbl.WordsInSlice())
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = tbl.Unrank(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEmptyLanguageRejected(t *testing.T) {
	fa, err := regexfa.Compile("abc")
	require.NoError(t, err)
	_, err = FromRegexFA(fa, 2)
	assert.ErrorIs(t, err, ErrLanguageIsEmpty)
}
