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

// Package controller wires config, logging, the admin/metrics HTTP
// server, and the relay acceptor loops into the running fteproxy
// process, the client or server half of the FTE tunnel, per
// runtime.mode (spec.md §6).
package controller

import (
	"context"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fteproxy/fteproxy/common"
	"github.com/fteproxy/fteproxy/confengine"
	"github.com/fteproxy/fteproxy/internal/crypt"
	"github.com/fteproxy/fteproxy/internal/languages"
	"github.com/fteproxy/fteproxy/internal/negotiate"
	"github.com/fteproxy/fteproxy/internal/record"
	"github.com/fteproxy/fteproxy/internal/relay"
	"github.com/fteproxy/fteproxy/internal/rescue"
	"github.com/fteproxy/fteproxy/internal/sigs"
	"github.com/fteproxy/fteproxy/logger"
	"github.com/fteproxy/fteproxy/server"
)

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	if opts.Filename == "" {
		opts.Filename = common.App + ".log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	logger.SetOptions(opts)
	return nil
}

// Controller owns the listener, language set, master key material, and
// the admin/metrics HTTP server for one running process.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       Config
	buildInfo common.BuildInfo

	langs    *languages.Set
	k1, k2   []byte
	relayCfg relay.Config

	svr    *server.Server
	ln     net.Listener
	demux  *relay.Demux
	active int64
}

// Overrides carries the CLI surface's listen/forward/mode flags
// (spec.md §6), applied on top of whatever the config file sets.
type Overrides struct {
	Mode    Mode
	Listen  string
	Forward string
}

// New parses conf into a Controller ready to Start. overrides' non-zero
// fields take precedence over the equivalent config file keys.
func New(conf *confengine.Config, buildInfo common.BuildInfo, overrides Overrides) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.Unpack(&cfg); err != nil {
		return nil, errors.Wrap(err, "controller: unpacking config")
	}
	if overrides.Mode != "" {
		cfg.Runtime.Mode = overrides.Mode
	}
	if overrides.Listen != "" {
		cfg.Listen = overrides.Listen
	}
	if overrides.Forward != "" {
		cfg.Forward = overrides.Forward
	}
	if cfg.Runtime.Mode != ModeClient && cfg.Runtime.Mode != ModeServer {
		return nil, errors.Wrapf(ErrUnknownMode, "%q", cfg.Runtime.Mode)
	}

	key, err := hex.DecodeString(cfg.Runtime.FTE.Encrypter.Key)
	if err != nil || len(key) != crypt.KeySize*2 {
		return nil, ErrInvalidEncrypterKey
	}

	specs := make([]languages.Spec, 0, len(cfg.Languages.Regex))
	for _, l := range cfg.Languages.Regex {
		specs = append(specs, languages.Spec{Name: l.Name, Pattern: l.Pattern, MaxLen: l.MaxLen})
	}
	langs, err := languages.Build(specs)
	if err != nil {
		return nil, err
	}

	svr, err := server.New(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		buildInfo: buildInfo,
		langs:     langs,
		k1:        key[:crypt.KeySize],
		k2:        key[crypt.KeySize:],
		relayCfg:  relayConfigFrom(cfg.Runtime.FTE.Relay, cfg.Runtime.TCP.Timeout),
		svr:       svr,
		demux:     relay.NewDemux(),
	}, nil
}

func relayConfigFrom(r RelayConfig, idle time.Duration) relay.Config {
	cfg := relay.DefaultConfig()
	cfg.EncoderBlockSize = r.EncoderBlockSize
	cfg.DecoderBlockSize = r.DecoderBlockSize
	if r.ClockSpeed > 0 {
		cfg.ClockSpeed = r.ClockSpeed
	}
	if r.SelectSpeed > 0 {
		cfg.SelectSpeed = r.SelectSpeed
	}
	if r.ServerTimeout > 0 {
		cfg.ServerTimeout = r.ServerTimeout
	}
	if r.ClientTimeout > 0 {
		cfg.ClientTimeout = r.ClientTimeout
	}
	if idle > 0 {
		cfg.IdleTimeout = idle
	}
	cfg.ForcefulShutdown = r.ForcefulShutdown
	return cfg
}

// Start binds the listener and begins accepting connections. It returns
// once the listener is bound; accept loops run in background goroutines.
func (c *Controller) Start() error {
	c.setupServer()
	if c.svr != nil {
		go func() {
			err := c.svr.ListenAndServe()
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("failed to start admin server: %v", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", c.cfg.Listen)
	if err != nil {
		return errors.Wrap(ErrFailedToBind, err.Error())
	}
	c.ln = ln
	logger.Infof("%s listening on %s (mode=%s)", common.App, c.cfg.Listen, c.cfg.Runtime.Mode)

	go c.acceptLoop()
	return nil
}

func (c *Controller) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				logger.Errorf("accept failed: %v", err)
				continue
			}
		}
		streamsTotal.Inc()
		atomic.AddInt64(&c.active, 1)
		streamsActive.Set(float64(atomic.LoadInt64(&c.active)))

		go func() {
			defer rescue.HandleCrash()
			defer func() {
				atomic.AddInt64(&c.active, -1)
				streamsActive.Set(float64(atomic.LoadInt64(&c.active)))
			}()

			var err error
			if c.cfg.Runtime.Mode == ModeClient {
				err = c.handleClient(conn)
			} else {
				err = c.handleServer(conn)
			}
			if err != nil {
				streamResetsTotal.Inc()
				logger.Debugf("stream ended: %v", err)
			}
		}()
	}
}

// handleClient serves one locally-accepted application connection: it
// dials the tunnel peer, performs the negotiation handshake under the
// configured upstream/downstream languages, and relays.
func (c *Controller) handleClient(appConn net.Conn) error {
	defer appConn.Close()

	tunnelConn, err := net.DialTimeout("tcp", c.cfg.Forward, c.relayCfg.ClientTimeout)
	if err != nil {
		return err
	}
	defer tunnelConn.Close()

	outCodec, err := c.langs.Codec(c.cfg.Runtime.State.UpstreamLanguage)
	if err != nil {
		return err
	}
	inCodec, err := c.langs.Codec(c.cfg.Runtime.State.DownstreamLanguage)
	if err != nil {
		return err
	}

	streamID := nextStreamID()
	masterCrypt, err := crypt.NewEncrypter(c.k1, c.k2)
	if err != nil {
		return err
	}
	enc, err := record.NewEncoder(outCodec, masterCrypt.Clone(), streamID, c.relayCfg.EncoderBlockSize)
	if err != nil {
		return err
	}
	dec := record.NewDecoder(inCodec, masterCrypt.Clone())

	base := negotiationBaseName(c.cfg.Runtime.State.UpstreamLanguage)
	cell, err := negotiate.MakeClientCell(time.Now().Format("20060102"), base)
	if err != nil {
		return err
	}
	word, err := enc.PopAs(cell, crypt.Negotiate)
	if err != nil {
		return err
	}
	if _, err := tunnelConn.Write([]byte(word)); err != nil {
		return err
	}

	if err := awaitNegotiateAck(tunnelConn, dec, c.cfg.Runtime.FTE.Negotiate.Timeout); err != nil {
		return err
	}

	stream := relay.NewStream(appConn, tunnelConn, streamID, enc, dec, c.relayCfg, nil)
	return relay.Serve(stream)
}

// handleServer serves one accepted tunnel connection: it trial-decodes
// the negotiation cell against every configured "*-request" language,
// dials the origin, and relays.
func (c *Controller) handleServer(tunnelConn net.Conn) error {
	defer tunnelConn.Close()

	masterCrypt, err := crypt.NewEncrypter(c.k1, c.k2)
	if err != nil {
		return err
	}

	base, remaining, ack, err := negotiateWithTimeout(c.langs, masterCrypt, tunnelConn, c.cfg.Runtime.FTE.Negotiate.Timeout)
	if err != nil {
		negotiationFailuresTotal.Inc()
		return err
	}

	reqCodec, err := c.langs.Request(base)
	if err != nil {
		return err
	}
	respCodec, err := c.langs.Response(base)
	if err != nil {
		return err
	}

	streamID := nextStreamID()
	dec := record.NewDecoder(reqCodec, masterCrypt.Clone())
	if len(remaining) > 0 {
		dec.Push(remaining)
	}
	enc, err := record.NewEncoder(respCodec, masterCrypt.Clone(), streamID, c.relayCfg.DecoderBlockSize)
	if err != nil {
		return err
	}
	ackWord, err := enc.PopAs(ack, crypt.NegotiateAck)
	if err != nil {
		return err
	}
	if _, err := tunnelConn.Write([]byte(ackWord)); err != nil {
		return err
	}

	origin, err := net.DialTimeout("tcp", c.cfg.Forward, c.relayCfg.ServerTimeout)
	if err != nil {
		return err
	}
	defer origin.Close()

	stream := relay.NewStream(origin, tunnelConn, streamID, enc, dec, c.relayCfg, nil)
	if c.cfg.Runtime.HTTPProxy.Enable {
		stream.EnableMux(c.demux, func() (net.Conn, error) {
			return net.DialTimeout("tcp", c.cfg.Forward, c.relayCfg.ServerTimeout)
		})
	}
	c.demux.Add(stream)
	defer c.demux.Remove(streamID)
	return relay.Serve(stream)
}

// awaitNegotiateAck blocks until the server's NEGOTIATE_ACK cell is
// decoded, or timeout elapses.
func awaitNegotiateAck(tunnelConn net.Conn, dec *record.Decoder, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		_ = tunnelConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := tunnelConn.Read(buf)
		if n > 0 {
			dec.Push(buf[:n])
			_, msgType, _, perr := dec.Pop()
			if perr == nil && msgType == crypt.NegotiateAck {
				return nil
			}
		}
		if err != nil && !isTimeoutErr(err) {
			return err
		}
	}
	return ErrNegotiateTimeout
}

// negotiateWithTimeout accumulates bytes from tunnelConn until
// negotiate.ServerAccept matches a configured language, or timeout
// elapses without a match.
func negotiateWithTimeout(set *languages.Set, masterCrypt *crypt.Encrypter, tunnelConn net.Conn, timeout time.Duration) (string, []byte, []byte, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	var buf []byte
	chunk := make([]byte, 4096)
	for time.Now().Before(deadline) {
		_ = tunnelConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := tunnelConn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			base, remaining, ack, aerr := negotiate.ServerAccept(set, masterCrypt, buf)
			if aerr == nil {
				return base, remaining, ack, nil
			}
		}
		if err != nil && !isTimeoutErr(err) {
			return "", nil, nil, err
		}
	}
	return "", nil, nil, ErrNegotiateTimeout
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func negotiationBaseName(languageName string) string {
	const suffix = "-request"
	if len(languageName) > len(suffix) && languageName[len(languageName)-len(suffix):] == suffix {
		return languageName[:len(languageName)-len(suffix)]
	}
	return languageName
}

var streamIDCounter uint32

func nextStreamID() uint32 {
	return uint32(atomic.AddUint32(&streamIDCounter, 1))
}

func (c *Controller) setupServer() {
	if c.svr == nil {
		return
	}
	c.svr.RegisterGetRoute("/metrics", c.routeMetrics)
	c.svr.RegisterPostRoute("/-/logger", c.routeLogger)
	c.svr.RegisterPostRoute("/-/reload", c.routeReload)
}

func (c *Controller) routeMetrics(w http.ResponseWriter, r *http.Request) {
	uptime.Set(float64(time.Now().Unix() - common.Started()))
	buildInfo.WithLabelValues(c.buildInfo.Version, c.buildInfo.GitHash, c.buildInfo.Time).Inc()
	promhttp.Handler().ServeHTTP(w, r)
}

func (c *Controller) routeLogger(w http.ResponseWriter, r *http.Request) {
	logger.SetLoggerLevel(r.FormValue("level"))
	_, _ = w.Write([]byte(`{"status": "success"}`))
}

func (c *Controller) routeReload(w http.ResponseWriter, r *http.Request) {
	if err := sigs.SelfReload(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
	}
}

// WritePidFile records the running process's pid under pidDir, per
// spec.md §5's "Per-process state."
func WritePidFile(pidDir string) (string, error) {
	if pidDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(pidDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(pidDir, common.App+".pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// PidDir returns the configured general.pid_dir, or "" if pid-file
// bookkeeping is disabled.
func (c *Controller) PidDir() string {
	return c.cfg.General.PidDir
}

// Stop closes the listener and cancels background work.
func (c *Controller) Stop() {
	if c.ln != nil {
		_ = c.ln.Close()
	}
	c.cancel()
}
