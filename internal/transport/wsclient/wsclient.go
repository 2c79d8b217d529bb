// Package wsclient is a reference transport.Transport backed by
// gorilla/websocket, dialing out to a Central System and reconnecting
// with exponential backoff. It owns goroutines, as does the telemetry
// mirror's drain loop: its job is precisely to turn a blocking socket
// into the non-blocking Poll() the single-threaded core requires.
package wsclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridwire/ocpp16core/internal/transport"
)

// Config configures a Client.
type Config struct {
	URL       string
	StationID string

	ConnectTimeout  time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	MaxReconnect    int // 0 = unlimited

	BasicAuthUsername string
	BasicAuthPassword string

	TLSEnabled    bool
	TLSCACert     string
	TLSClientCert string
	TLSClientKey  string
	TLSSkipVerify bool
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = 5 * time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 120 * time.Second
	}
}

// Client is a single-connection OCPP 1.6-J WebSocket transport.
type Client struct {
	cfg    Config
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	connected atomic.Bool

	frames chan transport.Frame
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	reconnects int
}

// New creates a Client and immediately begins connecting in the
// background; Poll surfaces a FrameConnected once the handshake lands.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan transport.Frame, 256),
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.run()
	return c
}

// Close tears down the connection and stops all goroutines.
func (c *Client) Close() {
	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()
}

// SendText implements transport.Transport.
func (c *Client) SendText(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// IsConnected implements transport.Transport.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Poll implements transport.Transport: drains whatever arrived since the
// last call without blocking.
func (c *Client) Poll() []transport.Frame {
	var out []transport.Frame
	for {
		select {
		case f := <-c.frames:
			out = append(out, f)
		default:
			return out
		}
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.dialAndServe(); err != nil {
			c.logger.Warn("wsclient: connection cycle ended", "error", err, "station", c.cfg.StationID)
		}

		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.cfg.MaxReconnect > 0 && c.reconnects >= c.cfg.MaxReconnect {
			c.logger.Error("wsclient: max reconnect attempts reached", "station", c.cfg.StationID)
			return
		}
		backoff := c.cfg.ReconnectBase * time.Duration(1<<uint(minInt(c.reconnects, 6)))
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
		c.reconnects++
		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) dialAndServe() error {
	headers := make(map[string][]string)
	if c.cfg.BasicAuthUsername != "" {
		headers["Authorization"] = []string{basicAuth(c.cfg.BasicAuthUsername, c.cfg.BasicAuthPassword)}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
		Subprotocols:     []string{"ocpp1.6"},
	}
	if c.cfg.TLSEnabled {
		tlsCfg, err := c.tlsConfig()
		if err != nil {
			return fmt.Errorf("wsclient: tls config: %w", err)
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, resp, err := dialer.Dial(c.cfg.URL, headers)
	if err != nil {
		return fmt.Errorf("wsclient: dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	c.reconnects = 0
	c.emit(transport.Frame{Kind: transport.FrameConnected})
	c.logger.Info("wsclient: connected", "station", c.cfg.StationID, "url", c.cfg.URL)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.readLoop(conn, done) }()
	go func() { defer wg.Done(); c.writeLoop(conn, done) }()
	wg.Wait()

	c.connected.Store(false)
	c.emit(transport.Frame{Kind: transport.FrameDisconnected})
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer closeOnce(done)
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.emit(transport.Frame{Kind: transport.FramePong})
		return nil
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		switch msgType {
		case websocket.TextMessage:
			c.emit(transport.Frame{Kind: transport.FrameText, Data: data})
		case websocket.BinaryMessage:
			c.emit(transport.Frame{Kind: transport.FrameBinary, Data: data})
		case websocket.CloseMessage:
			return
		}
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, done chan struct{}) {
	defer closeOnce(done)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) emit(f transport.Frame) {
	select {
	case c.frames <- f:
	default:
		c.logger.Warn("wsclient: frame buffer full, dropping", "kind", f.Kind.String())
	}
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: c.cfg.TLSSkipVerify}
	if c.cfg.TLSCACert != "" {
		pem, err := os.ReadFile(c.cfg.TLSCACert)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("append CA cert failed")
		}
		cfg.RootCAs = pool
	}
	if c.cfg.TLSClientCert != "" && c.cfg.TLSClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.TLSClientCert, c.cfg.TLSClientKey)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func closeOnce(done chan struct{}) {
	select {
	case <-done:
	default:
		close(done)
	}
}
