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

// Package record implements the FTE record layer: it packs an encrypted
// cell plus non-secret random padding into a fixed-length string drawn
// from a regex language, and unpacks it on the other side (spec.md §4.4).
//
// A cell's ciphertext never fills a codec's full bit capacity on its
// own. The difference is padded with random bits so every wire word is
// indistinguishable in length and (to a passive observer) in content
// from any other word of the same language. Capacity is spent, never
// stretched: Encoder never emits a payload that would need more bits
// than regexcodec.Codec.Capacity provides.
package record

import (
	"bytes"
	"crypto/rand"
	"math/big"

	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/regexcodec"
)

// headerPrefixBits is the number of leading bits of a cell's capacity-
// width integer occupied by IV || masked header, fixed regardless of
// how long the payload inside turns out to be.
const headerPrefixBits = (crypt.IVSize + crypt.HeaderSize) * 8

// Encoder turns an outgoing byte stream into a sequence of fixed-length
// wire words for one direction of one stream.
type Encoder struct {
	codec      *regexcodec.Codec
	crypter    *crypt.Encrypter
	streamID   uint32
	maxPayload int

	incoming bytes.Buffer
	closing  bool
	closed   bool
}

// NewEncoder builds an Encoder over codec, sealing cells with crypter
// under streamID. maxBlock caps the payload carried per cell; 0 means
// "use whatever the codec's capacity allows."
func NewEncoder(codec *regexcodec.Codec, crypter *crypt.Encrypter, streamID uint32, maxBlock int) (*Encoder, error) {
	maxPayload := (codec.Capacity() - crypt.CtxtExpansionBits) / 8
	if maxPayload <= 0 {
		return nil, ErrCapacityTooSmall
	}
	if maxBlock > 0 && maxBlock < maxPayload {
		maxPayload = maxBlock
	}
	return &Encoder{
		codec:      codec,
		crypter:    crypter,
		streamID:   streamID,
		maxPayload: maxPayload,
	}, nil
}

// Push buffers outgoing application bytes for later framing by Pop.
func (e *Encoder) Push(b []byte) {
	e.incoming.Write(b)
}

// Close marks the stream for an END_OF_STREAM cell once the buffered
// bytes have all been popped.
func (e *Encoder) Close() {
	e.closing = true
}

// Pop returns the next wire word, if one is ready. The second return
// value is false when there is nothing left to send: either the buffer
// is empty and Close hasn't been called, or the END_OF_STREAM cell has
// already gone out.
func (e *Encoder) Pop() (string, bool, error) {
	if e.closed {
		return "", false, nil
	}

	var payload []byte
	msgType := crypt.Data
	if e.incoming.Len() > 0 {
		n := e.maxPayload
		if n > e.incoming.Len() {
			n = e.incoming.Len()
		}
		payload = e.incoming.Next(n)
	} else if e.closing {
		msgType = crypt.EndOfStream
		e.closed = true
	} else {
		return "", false, nil
	}

	ctxt, err := e.crypter.Encrypt(payload, msgType, e.streamID)
	if err != nil {
		return "", false, err
	}

	word, err := e.pad(ctxt)
	if err != nil {
		return "", false, err
	}
	return word, true, nil
}

// PopAs seals payload under msgType and returns the wire word for it
// immediately, bypassing the Push/Pop buffer entirely. It's for the
// one-shot NEGOTIATE/NEGOTIATE_ACK cells (spec.md §4.5), which carry a
// message type Push/Pop's DATA/END_OF_STREAM framing never produces.
func (e *Encoder) PopAs(payload []byte, msgType crypt.MsgType) (string, error) {
	return e.PopAsFor(payload, msgType, e.streamID)
}

// PopAsFor is PopAs with an explicit streamID rather than the Encoder's
// own, for the server demultiplexer (spec.md §4.6): multiple logical
// pipelines sharing one physical tunnel socket fan their cells through
// one Encoder, each tagging its own stream_id.
func (e *Encoder) PopAsFor(payload []byte, msgType crypt.MsgType, streamID uint32) (string, error) {
	ctxt, err := e.crypter.Encrypt(payload, msgType, streamID)
	if err != nil {
		return "", err
	}
	return e.pad(ctxt)
}

// pad embeds ctxt as the high-order bits of the codec's capacity-wide
// integer and fills the remainder with non-secret random bits, per
// spec.md §4.4's "random padding, no correlation with plaintext length."
func (e *Encoder) pad(ctxt []byte) (string, error) {
	capacity := e.codec.Capacity()
	padBits := capacity - len(ctxt)*8
	if padBits < 0 {
		return "", ErrCapacityTooSmall
	}

	c := new(big.Int).SetBytes(ctxt)
	c.Lsh(c, uint(padBits))

	if padBits > 0 {
		padBytes := make([]byte, (padBits+7)/8)
		if _, err := rand.Read(padBytes); err != nil {
			return "", err
		}
		pad := new(big.Int).SetBytes(padBytes)
		mask := new(big.Int).Lsh(big.NewInt(1), uint(padBits))
		mask.Sub(mask, big.NewInt(1))
		pad.And(pad, mask)
		c.Or(c, pad)
	}

	return e.codec.Encode(c)
}

// Decoder turns incoming wire words back into an application byte
// stream for one direction of one stream.
type Decoder struct {
	codec    *regexcodec.Codec
	crypter  *crypt.Encrypter
	incoming bytes.Buffer
}

// NewDecoder builds a Decoder over codec, opening cells with crypter.
func NewDecoder(codec *regexcodec.Codec, crypter *crypt.Encrypter) *Decoder {
	return &Decoder{codec: codec, crypter: crypter}
}

// Push buffers raw bytes read off the tunnel socket.
func (d *Decoder) Push(b []byte) {
	d.incoming.Write(b)
}

// Pop consumes exactly one wire word (MaxLen bytes) from the buffered
// input and returns the plaintext fragment it decodes to, along with its
// message type and stream id. ErrPopFailed means fewer than MaxLen bytes
// are currently buffered. Call Push again and retry, it is not fatal.
func (d *Decoder) Pop() ([]byte, crypt.MsgType, uint32, error) {
	l := d.codec.MaxLen()
	if d.incoming.Len() < l {
		return nil, 0, 0, ErrPopFailed
	}
	word := d.incoming.Next(l)

	cPadded, err := d.codec.Decode(string(word))
	if err != nil {
		return nil, 0, 0, ErrUnrecoverableDecryptionFailure
	}

	capacity := d.codec.Capacity()
	if capacity < headerPrefixBits {
		return nil, 0, 0, ErrCapacityTooSmall
	}

	ivHeader := new(big.Int).Rsh(cPadded, uint(capacity-headerPrefixBits))
	ivHeaderBytes := ivHeader.FillBytes(make([]byte, crypt.IVSize+crypt.HeaderSize))

	hdr, err := d.crypter.DecryptHeader(ivHeaderBytes[:crypt.IVSize], ivHeaderBytes[crypt.IVSize:])
	if err != nil {
		return nil, 0, 0, ErrUnrecoverableDecryptionFailure
	}

	total := crypt.CtxtExpansionBits/8 + hdr.Length
	padBits := capacity - total*8
	if padBits < 0 {
		return nil, 0, 0, ErrUnrecoverableDecryptionFailure
	}

	full := new(big.Int).Rsh(cPadded, uint(padBits))
	fullBytes := full.FillBytes(make([]byte, total))
	sealedPayload := fullBytes[crypt.IVSize+crypt.HeaderSize:]

	payload, err := d.crypter.DecryptPayload(sealedPayload, hdr)
	if err != nil {
		return nil, 0, 0, ErrUnrecoverableDecryptionFailure
	}

	if hdr.MsgType == crypt.EndOfStream {
		return payload, hdr.MsgType, hdr.StreamID, ErrEndOfStream
	}
	return payload, hdr.MsgType, hdr.StreamID, nil
}
