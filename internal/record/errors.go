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

import "github.com/pkg/errors"

var (
	// ErrPopFailed means the decoder needs more input before it can
	// produce a plaintext fragment, benign, not fatal to the stream.
	ErrPopFailed = errors.New("record: pop failed, need more input")

	// ErrEndOfStream is the normal termination marker surfaced when a
	// cell's msg_type is END_OF_STREAM.
	ErrEndOfStream = errors.New("record: end of stream")

	// ErrUnrecoverableDecryptionFailure is fatal to the stream: close the
	// tunnel socket without sending further cells.
	ErrUnrecoverableDecryptionFailure = errors.New("record: unrecoverable decryption failure")

	// ErrCapacityTooSmall is returned when a codec's capacity can't carry
	// even one payload byte once the fixed cell overhead is subtracted.
	ErrCapacityTooSmall = errors.New("record: codec capacity smaller than cell overhead")
)
