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

package crypt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys() ([]byte, []byte) {
	k1 := bytes.Repeat([]byte{0x11}, KeySize)
	k2 := bytes.Repeat([]byte{0x22}, KeySize)
	return k1, k2
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		msgType MsgType
		stream  uint32
	}{
		{"data", []byte("hello"), Data, 42},
		{"empty payload", nil, Negotiate, 0},
		{"end of stream", []byte("bye"), EndOfStream, 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k1, k2 := testKeys()
			enc, err := NewEncrypter(k1, k2)
			require.NoError(t, err)
			dec, err := NewEncrypter(k1, k2)
			require.NoError(t, err)

			ctxt, err := enc.Encrypt(tc.payload, tc.msgType, tc.stream)
			require.NoError(t, err)
			assert.Equal(t, CtxtExpansionBits/8+len(tc.payload), len(ctxt))

			msgType, streamID, payload, err := dec.Decrypt(ctxt)
			require.NoError(t, err)
			assert.Equal(t, tc.msgType, msgType)
			assert.Equal(t, tc.stream, streamID)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestMacRejection(t *testing.T) {
	k1, k2 := testKeys()
	enc, err := NewEncrypter(k1, k2)
	require.NoError(t, err)
	dec, err := NewEncrypter(k1, k2)
	require.NoError(t, err)

	ctxt, err := enc.Encrypt([]byte("hello world"), Data, 1)
	require.NoError(t, err)

	tampered := append([]byte(nil), ctxt...)
	tampered[len(tampered)/2] ^= 0xFF

	_, _, _, err = dec.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrUnrecoverableDecryptionFailure)
}

func TestCloneIndependence(t *testing.T) {
	k1, k2 := testKeys()
	base, err := NewEncrypter(k1, k2)
	require.NoError(t, err)

	streamA := base.Clone()
	streamB := base.Clone()

	ctxtA, err := streamA.Encrypt([]byte("a"), Data, 1)
	require.NoError(t, err)
	ctxtB, err := streamB.Encrypt([]byte("a"), Data, 1)
	require.NoError(t, err)

	assert.NotEqual(t, ctxtA, ctxtB, "independent stream clones must not reuse transcript state")
}
