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

// Package crypt implements the record layer's authenticated-encryption
// scheme: a cell carries a stream id, message type, and length, all
// covered by the authentication tag, with ciphertext expansion fixed and
// independent of plaintext length.
//
// Built on github.com/codahale/thyrse's transcript-based Protocol. K1
// and K2 are mixed into one Protocol's transcript under separate
// labels rather than composed as two distinct primitives.
package crypt

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/codahale/thyrse"
	"github.com/pkg/errors"
)

// MsgType identifies the kind of cell a ciphertext carries.
type MsgType uint8

const (
	Data MsgType = iota
	Negotiate
	NegotiateAck
	EndOfStream
)

func (m MsgType) String() string {
	switch m {
	case Data:
		return "DATA"
	case Negotiate:
		return "NEGOTIATE"
	case NegotiateAck:
		return "NEGOTIATE_ACK"
	case EndOfStream:
		return "END_OF_STREAM"
	default:
		return "UNKNOWN"
	}
}

const (
	// KeySize is the size, in bytes, of each of K1 and K2 (128 bits).
	KeySize = 16

	// ivSize is the size, in bytes, of the per-cell IV mixed into the
	// transcript before Seal/Open.
	ivSize = 16

	// IVSize is ivSize, exported for record's bit-level cell framing.
	IVSize = ivSize

	// headerSize is stream_id(4) | msg_type(1) | length(2). Masked (not
	// sealed) on the wire, but mixed into the transcript ahead of the
	// payload's tag, so tampering with it still breaks the payload's MAC.
	headerSize = 4 + 1 + 2

	// HeaderSize is headerSize, exported for record's bit-level cell framing.
	HeaderSize = headerSize

	// TagSize is the authentication tag thyrse.Seal appends.
	TagSize = thyrse.TagSize

	// CTXT_EXPANSION_BITS per spec.md §4.3/§6: IV + header + tag, fixed
	// and independent of plaintext length.
	CtxtExpansionBits = (ivSize + headerSize + TagSize) * 8
)

var (
	// ErrUnrecoverableDecryptionFailure means MAC verification failed or
	// the ciphertext is structurally malformed. When thyrse's Open fails,
	// its error text is attached as the wrapping message.
	ErrUnrecoverableDecryptionFailure = errors.New("crypt: unrecoverable decryption failure")

	// ErrMalformedHeader describes an authenticated header whose length
	// doesn't match the payload that followed it. It is not returned on
	// its own: its text is attached to ErrUnrecoverableDecryptionFailure.
	ErrMalformedHeader = errors.New("crypt: malformed cell header")
)

// Encrypter wraps a keyed thyrse.Protocol, encrypting and decrypting
// record-layer cells. One Encrypter exists per direction per stream;
// Clone produces the independent per-stream instance spec.md calls for
// ("Encrypter: per-stream deep copy, to isolate counter state") without
// re-deriving the session keys.
type Encrypter struct {
	proto *thyrse.Protocol
}

// NewEncrypter derives a session-keyed Encrypter from two 128-bit keys.
func NewEncrypter(k1, k2 []byte) (*Encrypter, error) {
	if len(k1) != KeySize || len(k2) != KeySize {
		return nil, errors.New("crypt: keys must be 16 bytes each")
	}
	p := thyrse.New("fteproxy/cell")
	p.Mix("k1", k1)
	p.Mix("k2", k2)
	return &Encrypter{proto: p}, nil
}

// Clone returns an independent per-stream Encrypter seeded identically
// to e, whose transcript evolves on its own as cells are sealed.
func (e *Encrypter) Clone() *Encrypter {
	return &Encrypter{proto: e.proto.Clone()}
}

// Encrypt seals payload under msgType/streamID, returning the fixed-
// expansion ciphertext: IV | STREAM_ID | MSG_TYPE | LENGTH | PAYLOAD | MAC.
//
// The header is Mask-obscured rather than folded into the sealed blob,
// so the record layer can recover length before the payload's MAC
// check completes. It's then Mix-ed into the transcript before Seal, so
// a tampered header still desyncs the payload's tag.
func (e *Encrypter) Encrypt(payload []byte, msgType MsgType, streamID uint32) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, errors.New("crypt: payload too large for 16-bit length field")
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, "crypt: generating IV")
	}
	e.proto.Mix("iv", iv)

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], streamID)
	header[4] = byte(msgType)
	binary.BigEndian.PutUint16(header[5:7], uint16(len(payload)))

	maskedHeader := e.proto.Mask("header", nil, header)
	e.proto.Mix("header-content", header)
	sealed := e.proto.Seal("cell", nil, payload)

	ctxt := make([]byte, 0, ivSize+headerSize+len(sealed))
	ctxt = append(ctxt, iv...)
	ctxt = append(ctxt, maskedHeader...)
	ctxt = append(ctxt, sealed...)
	return ctxt, nil
}

// Header is the parsed, not-yet-authenticated content of a cell's masked
// header: stream id, message type, and the payload length the record
// layer needs to locate the sealed payload within a fixed-length cell
// before padding can be stripped.
type Header struct {
	StreamID uint32
	MsgType  MsgType
	Length   int
}

// DecryptHeader mixes iv and unmasks maskedHeader, returning the parsed
// header fields. Advances the transcript exactly as far as Decrypt's
// first half would, so a following DecryptPayload call lines up.
func (e *Encrypter) DecryptHeader(iv, maskedHeader []byte) (Header, error) {
	if len(iv) != ivSize || len(maskedHeader) != headerSize {
		return Header{}, ErrUnrecoverableDecryptionFailure
	}
	e.proto.Mix("iv", iv)
	header := e.proto.Unmask("header", nil, maskedHeader)
	e.proto.Mix("header-content", header)

	return Header{
		StreamID: binary.BigEndian.Uint32(header[0:4]),
		MsgType:  MsgType(header[4]),
		Length:   int(binary.BigEndian.Uint16(header[5:7])),
	}, nil
}

// DecryptPayload completes the decrypt DecryptHeader started, verifying
// the MAC over sealedPayload and the length hdr reported.
func (e *Encrypter) DecryptPayload(sealedPayload []byte, hdr Header) ([]byte, error) {
	payload, err := e.proto.Open("cell", nil, sealedPayload)
	if err != nil {
		return nil, errors.Wrap(ErrUnrecoverableDecryptionFailure, err.Error())
	}
	if hdr.Length != len(payload) {
		return nil, errors.Wrap(ErrUnrecoverableDecryptionFailure, ErrMalformedHeader.Error())
	}
	return payload, nil
}

// Decrypt is DecryptHeader followed by DecryptPayload over a complete,
// already-assembled ciphertext, the common case for negotiation cells
// and tests, where the payload length is fixed and known in advance.
func (e *Encrypter) Decrypt(ctxt []byte) (MsgType, uint32, []byte, error) {
	if len(ctxt) < ivSize+headerSize+TagSize {
		return 0, 0, nil, ErrUnrecoverableDecryptionFailure
	}
	hdr, err := e.DecryptHeader(ctxt[:ivSize], ctxt[ivSize:ivSize+headerSize])
	if err != nil {
		return 0, 0, nil, err
	}
	payload, err := e.DecryptPayload(ctxt[ivSize+headerSize:], hdr)
	if err != nil {
		return 0, 0, nil, err
	}
	return hdr.MsgType, hdr.StreamID, payload, nil
}
