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

package regexcodec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fteproxy/fteproxy/internal/dfa"
	"github.com/fteproxy/fteproxy/internal/regexfa"
)

func newCodec(t *testing.T, pattern string, maxLen int) *Codec {
	t.Helper()
	fa, err := regexfa.Compile(pattern)
	require.NoError(t, err)
	tbl, err := dfa.FromRegexFA(fa, maxLen)
	require.NoError(t, err)
	return New(tbl)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cd := newCodec(t, "[a-d]{4}", 4)

	for i := int64(0); i < 256; i++ {
		s, err := cd.Encode(big.NewInt(i))
		require.NoError(t, err)
		assert.Len(t, s, cd.MaxLen())

		rank, err := cd.Decode(s)
		require.NoError(t, err)
		assert.Equal(t, i, rank.Int64())
	}
}

func TestEncodeTooLarge(t *testing.T) {
	cd := newCodec(t, "[a-d]{4}", 4)
	huge := new(big.Int).Lsh(big.NewInt(1), uint(cd.Capacity()+8))
	_, err := cd.Encode(huge)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeWrongLength(t *testing.T) {
	cd := newCodec(t, "[a-d]{4}", 4)
	_, err := cd.Decode("abc")
	assert.Error(t, err)
}
