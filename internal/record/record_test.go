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

package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/dfa"
	"github.com/fteproxy/fteproxy/internal/regexcodec"
	"github.com/fteproxy/fteproxy/internal/regexfa"
)

func newTestCodec(t *testing.T) *regexcodec.Codec {
	t.Helper()
	fa, err := regexfa.Compile("[a-zA-Z0-9+/]{90}")
	require.NoError(t, err)
	tbl, err := dfa.FromRegexFA(fa, 90)
	require.NoError(t, err)
	return regexcodec.New(tbl)
}

func newTestKeys() ([]byte, []byte) {
	k1 := bytes.Repeat([]byte{0xAA}, crypt.KeySize)
	k2 := bytes.Repeat([]byte{0xBB}, crypt.KeySize)
	return k1, k2
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	k1, k2 := newTestKeys()

	encBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)
	decBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	enc, err := NewEncoder(codec, encBase.Clone(), 7, 0)
	require.NoError(t, err)
	dec := NewDecoder(codec, decBase.Clone())

	messages := [][]byte{
		[]byte("hello, world"),
		[]byte(""),
		[]byte("a second fragment after the first"),
	}

	var got [][]byte
	for _, m := range messages {
		enc.Push(m)
		for {
			word, ok, err := enc.Pop()
			require.NoError(t, err)
			if !ok {
				break
			}
			assert.Len(t, word, codec.MaxLen())

			dec.Push([]byte(word))
			frag, msgType, streamID, err := dec.Pop()
			require.NoError(t, err)
			assert.Equal(t, crypt.Data, msgType)
			assert.Equal(t, uint32(7), streamID)
			got = append(got, frag)
		}
	}

	assert.Equal(t, bytes.Join(messages, nil), bytes.Join(got, nil))
}

func TestEncoderClosePropagatesEndOfStream(t *testing.T) {
	codec := newTestCodec(t)
	k1, k2 := newTestKeys()
	encBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)
	decBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	enc, err := NewEncoder(codec, encBase.Clone(), 1, 0)
	require.NoError(t, err)
	dec := NewDecoder(codec, decBase.Clone())

	enc.Push([]byte("last bytes"))
	enc.Close()

	var sawEOS bool
	for {
		word, ok, err := enc.Pop()
		require.NoError(t, err)
		if !ok {
			break
		}
		dec.Push([]byte(word))
		_, msgType, _, err := dec.Pop()
		if msgType == crypt.EndOfStream {
			assert.ErrorIs(t, err, ErrEndOfStream)
			sawEOS = true
		} else {
			require.NoError(t, err)
		}
	}
	assert.True(t, sawEOS)

	_, ok, err := enc.Pop()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestDecoderResilientToArbitrarySplits feeds the same sequence of wire
// words to the decoder one byte at a time, proving Pop's ErrPopFailed/
// retry contract holds regardless of how the underlying socket happens
// to fragment reads (spec.md §8's framing-resilience property).
func TestDecoderResilientToArbitrarySplits(t *testing.T) {
	codec := newTestCodec(t)
	k1, k2 := newTestKeys()
	encBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)
	decBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	enc, err := NewEncoder(codec, encBase.Clone(), 3, 0)
	require.NoError(t, err)
	dec := NewDecoder(codec, decBase.Clone())

	enc.Push([]byte("framing resilience"))
	var wire []byte
	for {
		word, ok, err := enc.Pop()
		require.NoError(t, err)
		if !ok {
			break
		}
		wire = append(wire, []byte(word)...)
	}

	var frags [][]byte
	for i := 0; i < len(wire); i++ {
		dec.Push(wire[i : i+1])
		for {
			frag, _, _, err := dec.Pop()
			if err == ErrPopFailed {
				break
			}
			require.NoError(t, err)
			frags = append(frags, frag)
		}
	}

	assert.Equal(t, []byte("framing resilience"), bytes.Join(frags, nil))
}

func TestEncoderPopAsCarriesMsgType(t *testing.T) {
	codec := newTestCodec(t)
	k1, k2 := newTestKeys()
	encBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)
	decBase, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	enc, err := NewEncoder(codec, encBase.Clone(), 9, 0)
	require.NoError(t, err)
	dec := NewDecoder(codec, decBase.Clone())

	word, err := enc.PopAs([]byte("negotiate-payload"), crypt.Negotiate)
	require.NoError(t, err)
	assert.Len(t, word, codec.MaxLen())

	dec.Push([]byte(word))
	frag, msgType, streamID, err := dec.Pop()
	require.NoError(t, err)
	assert.Equal(t, crypt.Negotiate, msgType)
	assert.Equal(t, uint32(9), streamID)
	assert.Equal(t, "negotiate-payload", string(frag))
}

func TestNewEncoderRejectsUndersizedCapacity(t *testing.T) {
	fa, err := regexfa.Compile("ab")
	require.NoError(t, err)
	tbl, err := dfa.FromRegexFA(fa, 2)
	require.NoError(t, err)
	codec := regexcodec.New(tbl)

	k1, k2 := newTestKeys()
	crypter, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	_, err = NewEncoder(codec, crypter, 1, 0)
	assert.ErrorIs(t, err, ErrCapacityTooSmall)
}
