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

// Package dfa implements the rank/unrank bijection between integers in
// [0, words_in_slice) and fixed-length words of a regular language's
// length-L slice, over an arbitrary-precision counting table.
//
// A Table is built once per named language and is immutable afterwards,
// so it may be shared by reference across every record-layer codec that
// uses that language (spec.md's "DFA may be shared only as an immutable,
// concurrency-safe table").
package dfa

import (
	"math/big"

	"github.com/fteproxy/fteproxy/internal/regexfa"
)

// Table is the precomputed T[state][k] counting table for one DFA and
// one target length L, plus the derived words_in_slice/capacity values.
type Table struct {
	fa     *regexfa.DFA
	maxLen int

	// counts[q][k] = |{ w in Sigma^k : delta*(q, w) in F }|, for k in [0, maxLen].
	counts [][]*big.Int

	wordsInSlice *big.Int
	capacityBits int
}

// FromRegexFA builds a Table for fa over words of exactly maxLen bytes,
// computing T[state][k] via the standard recurrence:
//
//	T[q][0] = 1 if q is accepting else 0
//	T[q][k] = sum over byte a of T[delta(q,a)][k-1]
//
// This already counts words of length exactly maxLen (not a cumulative
// words_in_language(maxLen) total), so the result is directly usable as
// the rank/unrank index over the [0, words_in_slice) range spec.md's
// "offset trick" paragraph describes: no further offset arithmetic is
// needed inside Table because the counting table never enumerates
// shorter words in the first place.
func FromRegexFA(fa *regexfa.DFA, maxLen int) (*Table, error) {
	if maxLen < 0 {
		maxLen = 0
	}

	counts := make([][]*big.Int, fa.NumStates)
	for q := range counts {
		counts[q] = make([]*big.Int, maxLen+1)
	}
	for q := 0; q < fa.NumStates; q++ {
		if fa.Accept[q] {
			counts[q][0] = big.NewInt(1)
		} else {
			counts[q][0] = big.NewInt(0)
		}
	}
	for k := 1; k <= maxLen; k++ {
		for q := 0; q < fa.NumStates; q++ {
			sum := new(big.Int)
			for b := 0; b < 256; b++ {
				target := fa.Trans[q][b]
				sum.Add(sum, counts[target][k-1])
			}
			counts[q][k] = sum
		}
	}

	wordsInSlice := new(big.Int).Set(counts[fa.Start][maxLen])
	if wordsInSlice.Sign() == 0 {
		return nil, ErrLanguageIsEmpty
	}

	return &Table{
		fa:           fa,
		maxLen:       maxLen,
		counts:       counts,
		wordsInSlice: wordsInSlice,
		capacityBits: wordsInSlice.BitLen() - 1,
	}, nil
}

// MaxLen returns the fixed word length L this table ranks over.
func (t *Table) MaxLen() int { return t.maxLen }

// Capacity returns capacity_bits = floor(log2(words_in_slice)).
func (t *Table) Capacity() int { return t.capacityBits }

// WordsInSlice returns the number of length-L words accepted by the DFA.
func (t *Table) WordsInSlice() *big.Int {
	return new(big.Int).Set(t.wordsInSlice)
}

// Rank returns the 0-based index of word among the DFA's length-L words,
// in lexicographic (numeric byte) order. Fails with ErrNotInLanguage if
// word is not a length-L member of the language.
func (t *Table) Rank(word []byte) (*big.Int, error) {
	if len(word) != t.maxLen {
		return nil, ErrNotInLanguage
	}
	q := t.fa.Start
	rank := new(big.Int)
	for i, a := range word {
		remaining := t.maxLen - i - 1
		for lt := 0; lt < int(a); lt++ {
			target := t.fa.Trans[q][lt]
			rank.Add(rank, t.counts[target][remaining])
		}
		q = t.fa.Trans[q][a]
	}
	if !t.fa.Accept[q] {
		return nil, ErrNotInLanguage
	}
	if rank.Cmp(t.wordsInSlice) >= 0 {
		return nil, ErrNotInLanguage
	}
	return rank, nil
}

// Unrank returns the word whose rank is c. Fails with ErrOutOfRange if c
// is outside [0, words_in_slice).
func (t *Table) Unrank(c *big.Int) ([]byte, error) {
	if c.Sign() < 0 || c.Cmp(t.wordsInSlice) >= 0 {
		return nil, ErrOutOfRange
	}
	remaining := new(big.Int).Set(c)
	word := make([]byte, t.maxLen)
	q := t.fa.Start
	for i := 0; i < t.maxLen; i++ {
		k := t.maxLen - i - 1
		var a int
		for a = 0; a < 256; a++ {
			target := t.fa.Trans[q][a]
			count := t.counts[target][k]
			if remaining.Cmp(count) < 0 {
				break
			}
			remaining.Sub(remaining, count)
		}
		if a == 256 {
			return nil, ErrOutOfRange
		}
		word[i] = byte(a)
		q = t.fa.Trans[q][a]
	}
	if !t.fa.Accept[q] {
		return nil, ErrOutOfRange
	}
	return word, nil
}
