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

// Package relay couples one application-side socket and one tunnel-side
// socket through a record-layer encoder/decoder pair (spec.md §4.6): an
// encoder worker reads plaintext and writes covert cells outward, a
// decoder worker reads covert cells and writes recovered plaintext
// inward, and the two cooperate on shutdown through shared, mutex-
// guarded stream state.
package relay

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fteproxy/fteproxy/common"
	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/fasttime"
	"github.com/fteproxy/fteproxy/internal/record"
	"github.com/fteproxy/fteproxy/internal/rescue"
	"github.com/fteproxy/fteproxy/logger"
)

// State is a Stream's position in the spec §4.6 state machine.
type State int

const (
	StateNew State = iota
	StateEstablished
	StateDraining
	StateReset
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateEstablished:
		return "ESTABLISHED"
	case StateDraining:
		return "DRAINING"
	case StateReset:
		return "RESET"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrTCPReset is raised when the codec can't carry a cell within its
	// capacity, standing in for the dead-state signal spec.md §4.6 names.
	ErrTCPReset = errors.New("relay: tcp reset")

	// ErrNotMyStream means a decoded cell's stream id doesn't match this
	// Stream's, surfaced by server-side demultiplexing.
	ErrNotMyStream = errors.New("relay: stream id mismatch")

	// ErrChannelNotReady is surfaced to callers that read before
	// negotiation has completed, a retryable "would block".
	ErrChannelNotReady = errors.New("relay: channel not ready")
)

// Config carries the runtime tunables spec.md §6 lists under
// runtime.fte.relay.* and runtime.tcp.timeout. Populated once at stream
// construction, never looked up lazily in the worker hot loops.
type Config struct {
	EncoderBlockSize int
	DecoderBlockSize int
	ClockSpeed       time.Duration
	SelectSpeed      time.Duration
	ServerTimeout    time.Duration
	ClientTimeout    time.Duration
	IdleTimeout      time.Duration
	ForcefulShutdown bool
}

// DefaultConfig mirrors the source's FTE defaults closely enough to be a
// sane starting point; every field is still overridable from config.
func DefaultConfig() Config {
	return Config{
		ClockSpeed:    10 * time.Millisecond,
		SelectSpeed:   100 * time.Millisecond,
		ServerTimeout: 2 * time.Second,
		ClientTimeout: 2 * time.Second,
		IdleTimeout:   60 * time.Second,
	}
}

// ConnLogger records connect/terminate events, grounded on
// src/fte/relay.py's save_connection_information. Optional: when unset,
// Stream logs the same facts through the package logger at debug level.
type ConnLogger interface {
	LogConnect(streamID uint32, localPort, remotePort int, language string)
	LogTerminate(streamID uint32, reason error)
}

// Stream owns one tunnel net.Conn and its paired record.Encoder/Decoder,
// guarded by a shared mutex per spec §4.6.
type Stream struct {
	ID       string
	StreamID uint32

	app    net.Conn
	tunnel net.Conn

	enc *record.Encoder
	dec *record.Decoder

	cfg    Config
	connLg ConnLogger

	mu          sync.Mutex
	state       State
	sourceAlive bool
	sinkAlive   bool
	lastEncode  int64
	lastDecode  int64

	bytesIn  uint64
	bytesOut uint64

	// tunnelWriteMu serializes every encode-then-write onto tunnel, since
	// enc and tunnel may be shared with foreign pipelines spawned by the
	// demultiplexer (EnableMux). Always present; uncontended when mux is
	// off.
	tunnelWriteMu sync.Mutex

	// demux and dialOrigin are set by EnableMux for the server-side
	// http_proxy.enable case (spec.md §4.6): a decoded cell whose
	// stream_id doesn't match this Stream's gets routed to (or spawns) a
	// sibling pipeline sharing this same tunnel socket, instead of
	// tearing the connection down.
	demux      *Demux
	dialOrigin func() (net.Conn, error)
}

// NewStream builds a Stream around already-negotiated codecs and
// encrypters. Both the encoder and decoder are constructed together,
// regardless of which side sends first.
func NewStream(app, tunnel net.Conn, streamID uint32, outCodec *record.Encoder, dec *record.Decoder, cfg Config, connLg ConnLogger) *Stream {
	return &Stream{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		app:         app,
		tunnel:      tunnel,
		enc:         outCodec,
		dec:         dec,
		cfg:         cfg,
		connLg:      connLg,
		state:       StateNew,
		sourceAlive: true,
		sinkAlive:   true,
		lastEncode:  fasttime.UnixTimestamp(),
		lastDecode:  fasttime.UnixTimestamp(),
	}
}

// EnableMux turns on server-side stream demultiplexing (spec.md §4.6,
// runtime.http_proxy.enable) for s's tunnel socket. dialOrigin dials a
// fresh origin connection for a stream_id seen for the first time.
func (s *Stream) EnableMux(demux *Demux, dialOrigin func() (net.Conn, error)) {
	s.demux = demux
	s.dialOrigin = dialOrigin
}

func (s *Stream) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// State returns the stream's current state under lock.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) markEncode() {
	s.mu.Lock()
	s.lastEncode = fasttime.UnixTimestamp()
	s.mu.Unlock()
}

func (s *Stream) markDecode() {
	s.mu.Lock()
	s.lastDecode = fasttime.UnixTimestamp()
	s.mu.Unlock()
}

func (s *Stream) idleFor() time.Duration {
	s.mu.Lock()
	last := s.lastEncode
	if s.lastDecode > last {
		last = s.lastDecode
	}
	s.mu.Unlock()
	return time.Duration(fasttime.UnixTimestamp()-last) * time.Second
}

func (s *Stream) sourceDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sourceAlive
}

func (s *Stream) sinkDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sinkAlive
}

func (s *Stream) setSourceAlive(v bool) {
	s.mu.Lock()
	s.sourceAlive = v
	s.mu.Unlock()
}

func (s *Stream) setSinkAlive(v bool) {
	s.mu.Lock()
	s.sinkAlive = v
	s.mu.Unlock()
}

func (s *Stream) terminating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDraining || s.state == StateReset || s.state == StateClosed
}

// Serve drives one accepted connection end-to-end: spawns the encoder
// and decoder workers and blocks until both have exited. The caller owns
// closing app and tunnel once Serve returns.
func Serve(s *Stream) error {
	s.setState(StateEstablished)
	if s.connLg != nil {
		s.connLg.LogConnect(s.StreamID, localPort(s.app), remotePort(s.tunnel), "")
	} else {
		logger.Debugf("relay %s: stream %d established", s.ID, s.StreamID)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	var encErr, decErr error

	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		encErr = encodeWorker(s)
	}()
	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		decErr = decodeWorker(s)
	}()
	wg.Wait()

	final := encErr
	if final == nil {
		final = decErr
	}

	if final != nil && !errors.Is(final, record.ErrEndOfStream) {
		s.setState(StateReset)
	} else {
		s.setState(StateDraining)
	}
	s.setState(StateClosed)

	if s.connLg != nil {
		s.connLg.LogTerminate(s.StreamID, final)
	} else {
		logger.Debugf("relay %s: stream %d closed: %v", s.ID, s.StreamID, final)
	}
	return final
}

// encodeWorker reads plaintext from the application socket, feeds the
// record-layer encoder, and writes covert cells to the tunnel socket.
func encodeWorker(s *Stream) error {
	buf := make([]byte, readBlockSize(s.cfg.EncoderBlockSize))
	for {
		if s.terminating() || (s.sinkDone() && s.sourceDone()) {
			return nil
		}

		_ = s.app.SetReadDeadline(time.Now().Add(s.cfg.SelectSpeed))
		n, err := s.app.Read(buf)
		if n > 0 {
			s.enc.Push(buf[:n])
			s.bytesIn += uint64(n)
			s.markEncode()
		}
		if err != nil {
			if isTimeout(err) {
				// no work this tick; fall through to drain+idle checks below
			} else {
				s.setSourceAlive(false)
				s.enc.Close()
			}
		}

		for {
			s.tunnelWriteMu.Lock()
			word, ok, perr := s.enc.Pop()
			if !ok || perr != nil {
				s.tunnelWriteMu.Unlock()
				if perr != nil {
					return errors.Wrap(ErrTCPReset, perr.Error())
				}
				break
			}
			_, werr := s.tunnel.Write([]byte(word))
			s.tunnelWriteMu.Unlock()
			if werr != nil {
				return werr
			}
			s.markEncode()
		}

		if s.sourceDone() {
			return nil
		}
		if s.idleFor() > s.cfg.IdleTimeout {
			return nil
		}
		if isTimeout(err) {
			time.Sleep(s.cfg.ClockSpeed)
		}
	}
}

// decodeWorker reads covert cells from the tunnel socket, feeds the
// record-layer decoder, and writes recovered plaintext to the
// application socket.
func decodeWorker(s *Stream) error {
	buf := make([]byte, readBlockSize(s.cfg.DecoderBlockSize))
	for {
		if s.terminating() {
			return nil
		}

		_ = s.tunnel.SetReadDeadline(time.Now().Add(s.cfg.SelectSpeed))
		n, rerr := s.tunnel.Read(buf)
		if n > 0 {
			s.dec.Push(buf[:n])
			s.markDecode()
		}

		for {
			frag, msgType, streamID, perr := s.dec.Pop()
			if errors.Is(perr, record.ErrPopFailed) {
				break
			}
			isEOS := errors.Is(perr, record.ErrEndOfStream)
			if perr != nil && !isEOS {
				s.setSinkAlive(false)
				return perr
			}
			if streamID != s.StreamID {
				if s.demux == nil {
					return ErrNotMyStream
				}
				s.routeForeignCell(streamID, msgType, frag)
				s.markDecode()
				continue
			}
			if isEOS {
				s.setSinkAlive(false)
				return record.ErrEndOfStream
			}
			if len(frag) > 0 {
				if _, werr := s.app.Write(frag); werr != nil {
					return werr
				}
				s.bytesOut += uint64(len(frag))
			}
			s.markDecode()
		}

		if rerr != nil && !isTimeout(rerr) {
			s.setSinkAlive(false)
			return nil
		}

		if s.sinkDone() {
			return nil
		}
		if s.idleFor() > s.cfg.IdleTimeout {
			return nil
		}
		if isTimeout(rerr) {
			time.Sleep(s.cfg.ClockSpeed)
		}
	}
}

// routeForeignCell handles a decoded cell whose stream_id doesn't match
// s's own, dialing a new origin connection and spawning its outbound
// pipeline on first sight of that stream_id (spec.md §4.6). s's single
// decodeWorker is the only reader of the shared tunnel socket, so this
// is always called from that one goroutine; writes back out share s.enc
// and s.tunnel, serialized through s.tunnelWriteMu in
// forwardOriginToTunnel.
func (s *Stream) routeForeignCell(streamID uint32, msgType crypt.MsgType, frag []byte) {
	if msgType == crypt.EndOfStream {
		if p, ok := s.demux.Get(streamID); ok {
			_ = p.app.Close()
			s.demux.Remove(streamID)
		}
		return
	}

	p, ok := s.demux.Get(streamID)
	if !ok {
		origin, err := s.dialOrigin()
		if err != nil {
			logger.Debugf("relay %s: dialing origin for foreign stream %d: %v", s.ID, streamID, err)
			return
		}
		p = &Stream{ID: uuid.NewString(), StreamID: streamID, app: origin, tunnel: s.tunnel, state: StateEstablished}
		s.demux.Add(p)
		if s.connLg != nil {
			s.connLg.LogConnect(streamID, localPort(origin), remotePort(s.tunnel), "")
		}
		go s.forwardOriginToTunnel(p)
	}

	if len(frag) > 0 {
		if _, err := p.app.Write(frag); err != nil {
			_ = p.app.Close()
			s.demux.Remove(streamID)
		}
	}
}

// forwardOriginToTunnel reads p's origin connection and seals each chunk
// under p.StreamID through s's shared Encoder, writing the result out
// over s.tunnel. It's the outbound half of a demultiplexed pipeline; the
// inbound half is routeForeignCell, called from s's decodeWorker.
func (s *Stream) forwardOriginToTunnel(p *Stream) {
	defer rescue.HandleCrash()
	buf := make([]byte, readBlockSize(s.cfg.DecoderBlockSize))
	for {
		n, err := p.app.Read(buf)
		if n > 0 {
			s.tunnelWriteMu.Lock()
			word, werr := s.enc.PopAsFor(buf[:n], crypt.Data, p.StreamID)
			if werr == nil {
				_, werr = s.tunnel.Write([]byte(word))
			}
			s.tunnelWriteMu.Unlock()
			if werr != nil {
				break
			}
		}
		if err != nil {
			s.tunnelWriteMu.Lock()
			if word, werr := s.enc.PopAsFor(nil, crypt.EndOfStream, p.StreamID); werr == nil {
				_, _ = s.tunnel.Write([]byte(word))
			}
			s.tunnelWriteMu.Unlock()
			break
		}
	}
	_ = p.app.Close()
	s.demux.Remove(p.StreamID)
	if s.connLg != nil {
		s.connLg.LogTerminate(p.StreamID, nil)
	}
}

func readBlockSize(n int) int {
	if n > 0 {
		return n
	}
	return common.ReadWriteBlockSize
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func localPort(c net.Conn) int {
	if a, ok := c.LocalAddr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func remotePort(c net.Conn) int {
	if a, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Encrypter types re-exported for callers that wire Stream construction
// without importing internal/crypt directly.
type (
	Encrypter = crypt.Encrypter
	MsgType   = crypt.MsgType
)
