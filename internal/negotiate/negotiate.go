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

// Package negotiate implements the client/server handshake that selects
// a session's regex language pair (spec.md §4.5): the client encodes a
// fixed 64-byte cell under its chosen outgoing language and sends it;
// the server, with no codec installed yet, trial-decodes against every
// known "*-request" language until one produces a valid NEGOTIATE cell.
package negotiate

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/languages"
	"github.com/fteproxy/fteproxy/internal/record"
)

// CellSize is the fixed plaintext size of a negotiation payload (spec.md
// §6: 32 bytes NUL padding + 8-byte def_file tag + 24-byte base-name).
const CellSize = 64

const (
	padSize     = 32
	dateTagSize = 8
	baseNameOff = padSize + dateTagSize
	baseNameLen = CellSize - baseNameOff
)

// ErrNegotiationFailed means the server exhausted every known
// "*-request" language without finding one that trial-decodes the
// client's cell as a valid NEGOTIATE.
var ErrNegotiationFailed = errors.New("negotiate: no matching language")

// ErrBaseNameTooLong is returned by MakeClientCell when base doesn't fit
// the 24-byte field.
var ErrBaseNameTooLong = errors.New("negotiate: base name too long")

// MakeClientCell builds the 64-byte negotiation plaintext for base (a
// language base-name, without the "-request"/"-response" suffix) tagged
// with dateTag (an 8-byte "YYYYMMDD"-shaped string).
func MakeClientCell(dateTag, base string) ([]byte, error) {
	if len(base) > baseNameLen {
		return nil, ErrBaseNameTooLong
	}
	cell := make([]byte, CellSize)
	copy(cell[padSize:padSize+dateTagSize], []byte(dateTag))
	copy(cell[baseNameOff:], []byte(base))
	return cell, nil
}

// ParseBaseName extracts the language base-name from a decoded
// negotiation cell's plaintext.
func ParseBaseName(cell []byte) string {
	name := cell[baseNameOff:]
	if i := bytes.IndexByte(name, 0x00); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

// ServerAccept trial-decodes data against every "*-request" candidate in
// set, in configured order, until one yields a NEGOTIATE cell whose MAC
// verifies. It returns the matched base-name, the bytes left over in
// data after the one negotiation word was consumed, and the 64-byte
// NEGOTIATE_ACK plaintext the caller should seal under the matched
// language's response encrypter and send back.
func ServerAccept(set *languages.Set, encrypter *crypt.Encrypter, data []byte) (base string, remaining []byte, ack []byte, err error) {
	for _, candidate := range set.Candidates() {
		codec, cerr := set.Request(candidate)
		if cerr != nil {
			continue
		}
		if len(data) < codec.MaxLen() {
			continue
		}

		dec := record.NewDecoder(codec, encrypter.Clone())
		dec.Push(data[:codec.MaxLen()])

		frag, msgType, _, perr := dec.Pop()
		if perr != nil || msgType != crypt.Negotiate || len(frag) != CellSize {
			continue
		}

		ackCell, aerr := MakeClientCell("", candidate)
		if aerr != nil {
			continue
		}
		return candidate, data[codec.MaxLen():], ackCell, nil
	}
	return "", nil, nil, ErrNegotiationFailed
}
