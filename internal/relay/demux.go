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

import "sync"

// Demux routes decoded cells to per-stream-id pipelines on the server
// side when http_proxy.enable is set (spec.md §4.6), mirroring the
// teacher's portPools map-of-pools-by-key pattern, here keyed by
// stream_id instead of L7 proto, one *Stream per origin connection.
type Demux struct {
	mu      sync.Mutex
	streams map[uint32]*Stream
}

// NewDemux returns an empty Demux.
func NewDemux() *Demux {
	return &Demux{streams: make(map[uint32]*Stream)}
}

// Get returns the Stream already registered for streamID, if any.
func (d *Demux) Get(streamID uint32) (*Stream, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[streamID]
	return s, ok
}

// Add registers s under its StreamID, replacing any Stream already
// registered under that id.
func (d *Demux) Add(s *Stream) {
	d.mu.Lock()
	d.streams[s.StreamID] = s
	d.mu.Unlock()
}

// Remove drops the pipeline for streamID, e.g. once its Stream reaches
// StateClosed.
func (d *Demux) Remove(streamID uint32) {
	d.mu.Lock()
	delete(d.streams, streamID)
	d.mu.Unlock()
}

// Len reports how many streams are currently demultiplexed.
func (d *Demux) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}
