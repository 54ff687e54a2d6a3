// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package aprs is a client for the Open Glider Network APRS feed.
//
// The client keeps one socket to an APRS-IS server. Lines from tracked
// devices are decoded into positions and buffered until the OGN fetcher
// drains them on the next tick. Every other line is dropped after a cheap
// id match, the full position regex only runs for tracked devices.
//
// The connection is kept alive in both directions: the client sends a
// comment line every KeepAliveInterval, and the server is expected to send
// one every ServerKeepAlive. MaybeConnect reconnects when the inbound side
// went quiet for longer than ServerKeepAlive * StaleFactor, and Write drops
// such a connection rather than writing to it.
//
// Connection lifecycle events are kept in a bounded ring returned by
// DrainLogs.
package aprs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
	"github.com/vicb/flyXC-sub000/internal/models"
)

var (
	// ErrNotConnected is returned by Write while the socket is down.
	ErrNotConnected = errors.New("aprs: not connected")
	// ErrStale is returned by Write when the server went quiet. The
	// connection is dropped instead of written to.
	ErrStale = errors.New("aprs: inbound keep-alive stale")
)

// State is the connection state of the client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens the APRS-IS connection. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

const (
	softwareName    = "flyxc"
	softwareVersion = "1.0"
	maxLineLength   = 1024
)

// Client is the APRS-IS client. It is safe for concurrent use.
type Client struct {
	cfg    *config.APRSConfig
	dialer Dialer
	clock  func() time.Time
	log    zerolog.Logger

	mu          sync.Mutex
	state       State
	conn        net.Conn
	cancel      context.CancelFunc
	lastInbound time.Time
	tracked     map[string]struct{}
	positions   map[string][]models.Position
	// lastSeen is the time of the newest network position of each tracked device.
	lastSeen map[string]int64
	logs     []string

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithDialer injects the dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// New creates a disconnected client.
func New(cfg *config.APRSConfig, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		dialer:    &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second},
		clock:     time.Now,
		log:       logging.WithComponent("aprs"),
		tracked:   make(map[string]struct{}),
		positions: make(map[string][]models.Position),
		lastSeen:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MaybeConnect connects when disconnected, and reconnects a connection whose
// inbound keep-alives went stale.
func (c *Client) MaybeConnect(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	stale := state == Connected && c.clock().Sub(c.lastInbound) > c.staleAfter()
	c.mu.Unlock()

	switch {
	case state == Connecting:
		return nil
	case state == Connected && !stale:
		return nil
	case stale:
		c.log.Warn().Dur("stale_after", c.staleAfter()).Msg("APRS keep-alive stale, reconnecting")
		c.logEvent("keep-alive stale after " + c.staleAfter().String() + ", reconnecting")
		c.Disconnect()
	}
	return c.connect(ctx)
}

func (c *Client) staleAfter() time.Duration {
	return time.Duration(float64(c.cfg.ServerKeepAlive) * c.cfg.StaleFactor)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()

	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.cfg.Address)
	if err != nil {
		c.setState(Disconnected)
		c.logEvent("connect to " + c.cfg.Address + " failed: " + err.Error())
		return fmt.Errorf("aprs dial %s: %w", c.cfg.Address, err)
	}

	login := fmt.Sprintf("user %s pass %s vers %s %s", c.cfg.Callsign, c.cfg.Passcode, softwareName, softwareVersion)
	if c.cfg.Filter != "" {
		login += " filter " + c.cfg.Filter
	}
	if _, err := conn.Write([]byte(login + "\r\n")); err != nil {
		_ = conn.Close()
		c.setState(Disconnected)
		c.logEvent("login failed: " + err.Error())
		return fmt.Errorf("aprs login: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.state = Connected
	c.lastInbound = c.clock()
	c.appendLog("connected to " + c.cfg.Address)
	c.mu.Unlock()
	metrics.APRSConnected.Set(1)

	c.wg.Add(2)
	go c.readLoop(runCtx, conn)
	go c.keepAliveLoop(runCtx)

	c.log.Info().Str("address", c.cfg.Address).Str("filter", c.cfg.Filter).Msg("APRS connected")
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.SetBool(metrics.APRSConnected, s == Connected)
}

// Disconnect closes the connection and stops the background goroutines.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.state = Disconnected
	if conn != nil {
		c.appendLog("disconnected")
	}
	c.mu.Unlock()
	metrics.APRSConnected.Set(0)

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

// detach drops conn, unless a newer connection replaced it. It does not wait
// for the background goroutines, which may be the caller.
func (c *Client) detach(conn net.Conn, reason string) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.conn, c.cancel = nil, nil
	c.state = Disconnected
	c.appendLog(reason)
	c.mu.Unlock()
	metrics.APRSConnected.Set(0)

	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineLength), maxLineLength)
	for scanner.Scan() {
		c.handleLine(strings.TrimRight(scanner.Text(), "\r"))
	}
	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("APRS read failed")
		c.detach(conn, "read failed: "+err.Error())
		return
	}
	c.log.Warn().Msg("APRS server closed the connection")
	c.detach(conn, "server closed the connection")
}

func (c *Client) keepAliveLoop(ctx context.Context) {
	defer c.wg.Done()
	if c.cfg.KeepAliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Write("# " + softwareName + " keepalive"); err != nil {
				c.log.Warn().Err(err).Msg("APRS keep-alive failed")
			}
		}
	}
}

// Write sends one line to the server. A connection without inbound traffic
// for longer than the stale threshold is dropped and ErrStale returned.
func (c *Client) Write(line string) error {
	c.mu.Lock()
	conn := c.conn
	stale := conn != nil && c.clock().Sub(c.lastInbound) > c.staleAfter()
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if stale {
		c.log.Warn().Dur("stale_after", c.staleAfter()).Msg("APRS keep-alive stale, dropping connection")
		c.detach(conn, "keep-alive stale after "+c.staleAfter().String()+", connection dropped")
		return ErrStale
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("aprs write: %w", err)
	}
	return nil
}

// handleLine processes one inbound line.
func (c *Client) handleLine(line string) {
	if line == "" {
		return
	}
	now := c.clock()

	if line[0] == '#' {
		c.mu.Lock()
		c.lastInbound = now
		c.mu.Unlock()
		return
	}

	id := deviceID(line)
	if id == "" {
		return
	}
	c.mu.Lock()
	_, tracked := c.tracked[id]
	c.mu.Unlock()
	if !tracked {
		return
	}

	pos, ok := parsePosition(line, now)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bufferPosition(pos) {
		metrics.APRSPositions.Inc()
	}
}

// bufferPosition stores pos. It must be called with mu held.
func (c *Client) bufferPosition(pos models.Position) bool {
	if pos.TimeSec > c.lastSeen[pos.ID] {
		c.lastSeen[pos.ID] = pos.TimeSec
	}

	buf, exists := c.positions[pos.ID]
	if !exists && len(c.positions) >= c.cfg.MaxDevices {
		return false
	}
	if n := len(buf); n > 0 {
		spacing := int64(c.cfg.MinPositionSpacing / time.Second)
		if pos.TimeSec < buf[n-1].TimeSec+spacing {
			return false
		}
	}
	buf = append(buf, pos)
	if len(buf) > c.cfg.MaxPositionsPerDevice {
		buf = buf[len(buf)-c.cfg.MaxPositionsPerDevice:]
	}
	c.positions[pos.ID] = buf
	return true
}

func (c *Client) logEvent(event string) {
	c.mu.Lock()
	c.appendLog(event)
	c.mu.Unlock()
}

// appendLog keeps the last MaxLogs lifecycle events. It must be called with mu held.
func (c *Client) appendLog(line string) {
	c.logs = append(c.logs, c.clock().UTC().Format(time.RFC3339)+" "+line)
	if extra := len(c.logs) - c.cfg.MaxLogs; extra > 0 {
		c.logs = append(c.logs[:0], c.logs[extra:]...)
	}
}

// RegisterTrackedIDs replaces the set of tracked device ids. Buffered
// positions of devices no longer tracked are discarded.
func (c *Client) RegisterTrackedIDs(ids map[string]struct{}) {
	tracked := make(map[string]struct{}, len(ids))
	for id := range ids {
		tracked[strings.ToUpper(id)] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = tracked
	for id := range c.positions {
		if _, ok := tracked[id]; !ok {
			delete(c.positions, id)
		}
	}
	for id := range c.lastSeen {
		if _, ok := tracked[id]; !ok {
			delete(c.lastSeen, id)
		}
	}
}

// DrainPositions returns the buffered positions by device id and clears the buffer.
func (c *Client) DrainPositions() map[string][]models.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	positions := c.positions
	c.positions = make(map[string][]models.Position)
	return positions
}

// DrainLogs returns the recent lifecycle events and clears them.
func (c *Client) DrainLogs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs
	c.logs = nil
	return logs
}

// LastSeen returns the time of the newest network position of a tracked device.
func (c *Client) LastSeen(id string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.lastSeen[strings.ToUpper(id)]
	return ts, ok
}
