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

import "github.com/pkg/errors"

var (
	// ErrLanguageIsEmpty is returned when a language's length-L slice has
	// zero words (capacity 0 bits), making it unusable as a rank/unrank
	// codec target.
	ErrLanguageIsEmpty = errors.New("dfa: language slice is empty")

	// ErrNotInLanguage is returned by Rank when the word is not a member
	// of the DFA's length-L slice.
	ErrNotInLanguage = errors.New("dfa: word not in language")

	// ErrOutOfRange is returned by Unrank when c is outside [0, words_in_slice).
	ErrOutOfRange = errors.New("dfa: rank out of range")
)
