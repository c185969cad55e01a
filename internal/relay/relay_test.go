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

package relay

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/dfa"
	"github.com/fteproxy/fteproxy/internal/record"
	"github.com/fteproxy/fteproxy/internal/regexcodec"
	"github.com/fteproxy/fteproxy/internal/regexfa"
)

func testCodec(t *testing.T) *regexcodec.Codec {
	t.Helper()
	fa, err := regexfa.Compile("[a-zA-Z0-9+/]{90}")
	require.NoError(t, err)
	tbl, err := dfa.FromRegexFA(fa, 90)
	require.NoError(t, err)
	return regexcodec.New(tbl)
}

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

// TestStreamEchoEstablishesAndCloses covers a golden-path echo across a
// single relay'd stream, similar in shape to spec.md §8's S1 scenario,
// and asserts the state machine reaches CLOSED exactly once both
// directions observe end-of-stream.
func TestStreamEchoEstablishesAndCloses(t *testing.T) {
	codec := testCodec(t)
	k1 := bytes.Repeat([]byte{0x01}, crypt.KeySize)
	k2 := bytes.Repeat([]byte{0x02}, crypt.KeySize)

	clientCrypt, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)
	serverCrypt, err := crypt.NewEncrypter(k1, k2)
	require.NoError(t, err)

	clientApp, clientAppPeer := pipePair(t)
	clientTunnel, serverTunnel := net.Pipe()
	t.Cleanup(func() { clientTunnel.Close(); serverTunnel.Close() })
	serverApp, serverAppPeer := pipePair(t)

	clientEnc, err := record.NewEncoder(codec, clientCrypt.Clone(), 1, 0)
	require.NoError(t, err)
	clientDec := record.NewDecoder(codec, clientCrypt.Clone())
	cfg := DefaultConfig()
	cfg.ClockSpeed = time.Millisecond
	cfg.SelectSpeed = 5 * time.Millisecond
	cfg.IdleTimeout = 200 * time.Millisecond

	clientStream := NewStream(clientApp, clientTunnel, 1, clientEnc, clientDec, cfg, nil)

	serverEnc, err := record.NewEncoder(codec, serverCrypt.Clone(), 1, 0)
	require.NoError(t, err)
	serverDec := record.NewDecoder(codec, serverCrypt.Clone())
	serverStream := NewStream(serverApp, serverTunnel, 1, serverEnc, serverDec, cfg, nil)

	done := make(chan error, 2)
	go func() { done <- Serve(clientStream) }()
	go func() { done <- Serve(serverStream) }()

	_, err = clientAppPeer.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_ = serverAppPeer.SetReadDeadline(time.Now().Add(time.Second))
	_, err = serverAppPeer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	clientAppPeer.Close()
	serverAppPeer.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not shut down in time")
		}
	}

	assert.Equal(t, StateClosed, clientStream.State())
	assert.Equal(t, StateClosed, serverStream.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ESTABLISHED", StateEstablished.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
}

func TestDemuxAddGetRemove(t *testing.T) {
	d := NewDemux()
	s := &Stream{StreamID: 42}
	d.Add(s)

	got, ok := d.Get(42)
	assert.True(t, ok)
	assert.Same(t, s, got)

	d.Remove(42)
	_, ok = d.Get(42)
	assert.False(t, ok)
}
