package mexc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultWSHost serves both public and private contract channels.
	DefaultWSHost = "wss://contract.mexc.com/ws"

	// pingEvery is the number of host timer ticks between pings.
	pingEvery = 15

	// DefaultReadTimeout is how long a connection may stay silent, pongs
	// included, before it is dropped and redialled.
	DefaultReadTimeout = 60 * time.Second
)

// wsConn is the subset of *websocket.Conn the streams use.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type frameKind int

const (
	frameData frameKind = iota
	framePong
	frameLogin
	frameError
)

func (k frameKind) String() string {
	switch k {
	case framePong:
		return "pong"
	case frameLogin:
		return "login"
	case frameError:
		return "error"
	}
	return "data"
}

// frame is one inbound message. Depth pushes carry symbol and ts at the top level.
type frame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Symbol  string          `json:"symbol"`
	TS      int64           `json:"ts"`
}

func (f frame) dataString() string {
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return s
	}
	return string(f.Data)
}

// classify decodes a raw frame and tags it.
func classify(raw []byte) (frameKind, frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == "pong" || string(trimmed) == "ping" {
		return framePong, frame{Channel: "pong"}, nil
	}
	var f frame
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return frameData, f, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Channel {
	case "":
		return frameData, f, errors.New("frame without channel")
	case "pong":
		return framePong, f, nil
	case "rs.login":
		if f.dataString() == "success" {
			return frameLogin, f, nil
		}
		return frameError, f, nil
	case "rs.error":
		return frameError, f, nil
	}
	return frameData, f, nil
}

// streamHandler is implemented by the market and private streams.
type streamHandler interface {
	onConnected()
	onLogin()
	onData(f frame)
	onDisconnected()
}

// stream is the connection base shared by the market and private channels.
// One goroutine reads; writes are serialized by writeMu.
type stream struct {
	name          string
	url           string
	requiresLogin bool
	readTimeout   time.Duration
	onReady       func(reconnect bool)
	log           *zap.Logger
	h             streamHandler
	dial          func(ctx context.Context) (wsConn, error)

	writeMu sync.Mutex
	conn    wsConn

	// readyCh is closed while the channel is usable and replaced when it
	// stops being usable.
	readyMu  sync.Mutex
	readyCh  chan struct{}
	usable   atomic.Bool
	sessions atomic.Int64

	timerTick atomic.Int32

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newStream(name string, cfg StreamConfig, requiresLogin bool, h streamHandler, log *zap.Logger) (*stream, error) {
	wsURL := cfg.URL
	if wsURL == "" {
		wsURL = DefaultWSHost
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(u)
	}
	s := &stream{
		name:          name,
		url:           wsURL,
		requiresLogin: requiresLogin,
		readTimeout:   readTimeout,
		onReady:       cfg.OnReady,
		log:           log.Named(name),
		h:             h,
		readyCh:       make(chan struct{}),
	}
	s.dial = func(ctx context.Context) (wsConn, error) {
		conn, _, err := dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", s.url, err)
		}
		return conn, nil
	}
	return s, nil
}

// Start runs the connection loop in the background until ctx ends or Close.
func (s *stream) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Close stops the connection loop and waits for it to exit.
func (s *stream) Close() error {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.writeMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}
	s.writeMu.Unlock()
	<-done
	return nil
}

// Usable reports whether the channel is connected and, for the private
// channel, logged in.
func (s *stream) Usable() bool {
	return s.usable.Load()
}

// WaitUsable blocks until the channel is usable, ctx ends or timeout
// passes. A non-positive timeout does not wait.
func (s *stream) WaitUsable(ctx context.Context, timeout time.Duration) error {
	s.readyMu.Lock()
	ready := s.readyCh
	s.readyMu.Unlock()
	select {
	case <-ready:
		return nil
	default:
	}
	if timeout <= 0 {
		return fmt.Errorf("%s: %w", s.name, ErrNotConnected)
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ready:
		return nil
	case <-t.C:
		return fmt.Errorf("%s after %v: %w", s.name, timeout, ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markUsable opens the channel for use. The OnReady hook runs once per
// connection, with reconnect set for every connection after the first.
func (s *stream) markUsable() {
	s.readyMu.Lock()
	if s.usable.Load() {
		s.readyMu.Unlock()
		return
	}
	s.usable.Store(true)
	close(s.readyCh)
	s.readyMu.Unlock()

	n := s.sessions.Add(1)
	if s.onReady != nil {
		s.onReady(n > 1)
	}
}

func (s *stream) markUnusable() {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	if !s.usable.Load() {
		return
	}
	s.usable.Store(false)
	s.readyCh = make(chan struct{})
}

// OnTimer counts host ticks and sends a ping every pingEvery ticks.
func (s *stream) OnTimer() {
	if s.timerTick.Add(1) < pingEvery {
		return
	}
	s.timerTick.Store(0)
	if err := s.send(map[string]string{"method": "ping"}); err != nil {
		s.log.Debug("ping skipped", zap.Error(err))
	}
}

func (s *stream) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.dial(ctx)
		if err != nil {
			s.log.Warn("connect failed", zap.Error(err))
			if !s.sleep(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}
		bo.Reset()
		s.extendDeadline(conn)
		s.setConn(conn)
		s.log.Info("connected", zap.String("url", s.url))
		s.h.onConnected()
		if !s.requiresLogin {
			s.markUsable()
		}

		err = s.readLoop(conn)

		s.setConn(nil)
		_ = conn.Close()
		s.markUnusable()
		s.h.onDisconnected()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("disconnected", zap.Error(err))
		if !s.sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (s *stream) sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *stream) setConn(c wsConn) {
	s.writeMu.Lock()
	s.conn = c
	s.writeMu.Unlock()
}

func (s *stream) readLoop(conn wsConn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.extendDeadline(conn)
		s.dispatch(msg)
	}
}

// extendDeadline pushes the read deadline out after any inbound frame, so a
// connection that stops answering pings fails its next read.
func (s *stream) extendDeadline(conn wsConn) {
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *stream) dispatch(msg []byte) {
	kind, f, err := classify(msg)
	if err != nil {
		s.log.Warn("drop frame", zap.Error(err), zap.ByteString("raw", msg))
		return
	}
	switch kind {
	case framePong:
	case frameLogin:
		s.log.Info("login succeeded")
		s.h.onLogin()
		s.markUsable()
	case frameError:
		if s.requiresLogin && !s.usable.Load() {
			s.log.Error("login rejected", zap.Error(&AuthError{Reason: f.dataString()}))
			return
		}
		s.log.Error("error frame", zap.String("channel", f.Channel), zap.String("data", f.dataString()))
	default:
		s.h.onData(f)
	}
}

// send encodes v and writes it as one text frame.
func (s *stream) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
