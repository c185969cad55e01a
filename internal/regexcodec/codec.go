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

// Package regexcodec composes dfa.Table's rank/unrank with a
// fixed-length string policy, turning integers into wire-conformant
// strings and back.
package regexcodec

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/fteproxy/fteproxy/internal/dfa"
)

// ErrPayloadTooLarge is returned by Encode when c needs more bits than
// Capacity provides.
var ErrPayloadTooLarge = errors.New("regexcodec: payload exceeds codec capacity")

// Codec holds a shared, immutable *dfa.Table for one named language and
// exposes the encode/decode operations the record layer drives. A Codec
// value is itself stateless and safe to share read-only across streams;
// the DFA table underneath it is immutable after construction (spec.md's
// "DFA may be shared only as an immutable, concurrency-safe table").
type Codec struct {
	table *dfa.Table
}

// New wraps table in a Codec.
func New(table *dfa.Table) *Codec {
	return &Codec{table: table}
}

// MaxLen returns L, the fixed length of every encoded string.
func (cd *Codec) MaxLen() int { return cd.table.MaxLen() }

// Capacity returns capacity_bits, the number of bits a payload may carry.
func (cd *Codec) Capacity() int { return cd.table.Capacity() }

// Encode returns a string of length MaxLen whose rank is c.
func (cd *Codec) Encode(c *big.Int) (string, error) {
	if c.BitLen() > cd.table.Capacity() {
		return "", ErrPayloadTooLarge
	}
	word, err := cd.table.Unrank(c)
	if err != nil {
		return "", errors.Wrap(err, "regexcodec: encode")
	}
	return string(word), nil
}

// Decode returns the rank of s, which must have length exactly MaxLen.
func (cd *Codec) Decode(s string) (*big.Int, error) {
	rank, err := cd.table.Rank([]byte(s))
	if err != nil {
		return nil, errors.Wrap(err, "regexcodec: decode")
	}
	return rank, nil
}
