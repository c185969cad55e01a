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

// Package languages loads the named regex-language collection
// (`languages.regex` in config) and builds the paired request/response
// codecs the negotiation and relay layers drive (spec.md §6).
package languages

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/fteproxy/fteproxy/internal/dfa"
	"github.com/fteproxy/fteproxy/internal/regexcodec"
	"github.com/fteproxy/fteproxy/internal/regexfa"
)

// minWordsInSlice is spec.md §3's words_in_slice ≥ 2 invariant.
var minWordsInSlice = big.NewInt(2)

const (
	requestSuffix  = "-request"
	responseSuffix = "-response"
)

// ErrUnknownLanguage is returned when a configured state names a
// base-name not present in a Set.
var ErrUnknownLanguage = errors.New("languages: unknown language")

// ErrLanguageTooSmall is returned by Build when a language's length-L
// slice has exactly one word: spec.md §3's invariant words_in_slice ≥ 2
// (a single word carries zero capacity bits, so rank/unrank degenerates
// to a no-op and the word never varies).
var ErrLanguageTooSmall = errors.New("languages: words_in_slice must be at least 2")

// Spec is one named language as read from config: a pattern and the
// fixed word length the codec ranks over.
type Spec struct {
	Name    string
	Pattern string
	MaxLen  int
}

// Set is the compiled collection of named language codecs loaded at
// startup. Codecs are immutable and safe to share read-only across every
// stream (spec.md: "DFA may be shared only as an immutable,
// concurrency-safe table").
type Set struct {
	codecs  map[string]*regexcodec.Codec
	baseReq []string // base-names that have a "<base>-request" entry, in config order
}

// Build compiles every Spec in specs into a Set. Each Spec with a name
// ending in "-request" is tracked as a negotiation candidate.
func Build(specs []Spec) (*Set, error) {
	set := &Set{codecs: make(map[string]*regexcodec.Codec, len(specs))}
	for _, s := range specs {
		fa, err := regexfa.Compile(s.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "languages: compiling %q", s.Name)
		}
		tbl, err := dfa.FromRegexFA(fa, s.MaxLen)
		if err != nil {
			return nil, errors.Wrapf(err, "languages: building table for %q", s.Name)
		}
		if tbl.WordsInSlice().Cmp(minWordsInSlice) < 0 {
			return nil, errors.Wrapf(ErrLanguageTooSmall, "%q", s.Name)
		}
		set.codecs[s.Name] = regexcodec.New(tbl)
		if strings.HasSuffix(s.Name, requestSuffix) {
			set.baseReq = append(set.baseReq, strings.TrimSuffix(s.Name, requestSuffix))
		}
	}
	return set, nil
}

// Codec returns the compiled codec for name, e.g. "http-request".
func (s *Set) Codec(name string) (*regexcodec.Codec, error) {
	cd, ok := s.codecs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLanguage, "%q", name)
	}
	return cd, nil
}

// Request returns the codec for base+"-request".
func (s *Set) Request(base string) (*regexcodec.Codec, error) {
	return s.Codec(base + requestSuffix)
}

// Response returns the codec for base+"-response".
func (s *Set) Response(base string) (*regexcodec.Codec, error) {
	return s.Codec(base + responseSuffix)
}

// Candidates returns the base-names with a "*-request" codec, in the
// order they were configured, the iteration order the server's
// negotiation trial loop walks (spec.md §4.5 step 2, SPEC_FULL.md's
// "languages.regex multi-language server").
func (s *Set) Candidates() []string {
	out := make([]string, len(s.baseReq))
	copy(out, s.baseReq)
	return out
}
