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

package common

const (
	// App is the process name, used as the metrics namespace and pid
	// file stem.
	App = "fteproxy"

	// Version is the release version string.
	Version = "v0.1.0"

	// ReadWriteBlockSize bounds one socket Read in encodeWorker and
	// decodeWorker when no encoder/decoder block size is configured. The negotiated language's record cell size is
	// usually much smaller than this; it's just an upper bound on the
	// underlying read buffer.
	ReadWriteBlockSize = 4096
)
