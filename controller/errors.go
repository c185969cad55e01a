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

package controller

import "github.com/pkg/errors"

var (
	// ErrNegotiateTimeout means a side exceeded its negotiate.timeout
	// budget without completing the handshake.
	ErrNegotiateTimeout = errors.New("controller: negotiate timeout")

	// ErrChannelNotReady surfaces to callers that try to relay data
	// before negotiation has completed.
	ErrChannelNotReady = errors.New("controller: channel not ready")

	// ErrFailedToBind means the listener could not acquire its port —
	// fatal at startup.
	ErrFailedToBind = errors.New("controller: failed to bind listener")

	// ErrInvalidEncrypterKey means runtime.fte.encrypter.key isn't
	// 32 hex-decodable bytes (K1 || K2).
	ErrInvalidEncrypterKey = errors.New("controller: encrypter key must be 32 bytes (K1||K2)")

	// ErrUnknownMode means runtime.mode wasn't "client" or "server".
	ErrUnknownMode = errors.New("controller: unknown mode")
)
