package stream

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for device socket connections.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// backoffFactor is the multiplier applied to the reconnect delay after
	// each failed attempt.
	backoffFactor = 1.5
)

// ClientConfig holds device socket connection configuration.
type ClientConfig struct {
	// Connection is the device connection URL.
	// Supported formats:
	//   - "tcp://192.168.1.40:4999" (TCP, e.g. a serial-over-IP bridge)
	//   - "unix:///run/avr.sock" (Unix socket)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics for a client stream.
type Stats struct {
	BytesTx         uint64
	BytesRx         uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
}

// Client is a reconnecting socket stream to a physical device endpoint.
//
// Thread Safety:
//   - Read and Write are safe for concurrent use from one reader and one
//     writer goroutine (the engine's two loops).
//   - On I/O failure the caller's operation fails fast; a background
//     goroutine re-establishes the connection with exponential backoff.
//     Reads and writes return ErrNotConnected until it succeeds.
type Client struct {
	cfg ClientConfig

	conn      net.Conn
	connMu    sync.RWMutex
	connected bool

	reconnecting atomic.Bool

	done *closeOnce
	wg   sync.WaitGroup

	bytesTx         atomic.Uint64
	bytesRx         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp

	// pending read deadline, reapplied after reconnect
	deadlineMu sync.Mutex
	deadline   time.Time
}

// Dial establishes the initial connection to a device endpoint.
//
// Failing to open a configured stream at all is the one fatal error in the
// system; it is surfaced here, at construction, not at runtime.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s://%s: %w", ErrConnectionFailed, network, address, err)
	}

	c := &Client{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		done:      newCloseOnce(),
	}
	c.lastActivity.Store(time.Now().Unix())
	return c, nil
}

// parseConnectionURL parses a device connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("tcp URL missing host: %q", connURL)
		}
		return "tcp", u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use tcp or unix)", u.Scheme)
	}
}

// Read implements Stream. A failed read triggers background reconnection;
// until it completes, Read returns ErrNotConnected.
func (c *Client) Read(p []byte) (int, error) {
	conn := c.currentConn()
	if conn == nil {
		return 0, ErrNotConnected
	}

	n, err := conn.Read(p)
	if n > 0 {
		c.bytesRx.Add(uint64(n))
		c.lastActivity.Store(time.Now().Unix())
	}
	if err != nil && !isTimeout(err) {
		c.handleIOFailure()
	}
	return n, err
}

// Write implements Stream. Writes carry a bounded deadline so a wedged
// device cannot stall the engine's write loop indefinitely.
func (c *Client) Write(p []byte) (int, error) {
	conn := c.currentConn()
	if conn == nil {
		return 0, ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return 0, fmt.Errorf("%w: set deadline: %w", ErrWriteFailed, err)
	}

	n, err := conn.Write(p)
	if n > 0 {
		c.bytesTx.Add(uint64(n))
		c.lastActivity.Store(time.Now().Unix())
	}
	if err != nil {
		c.errorsTotal.Add(1)
		c.handleIOFailure()
		return n, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return n, nil
}

// SetReadDeadline implements Stream. The deadline is remembered and
// reapplied to a fresh connection after reconnect.
func (c *Client) SetReadDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.deadline = t
	c.deadlineMu.Unlock()

	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SetReadDeadline(t)
}

// Close implements Stream. Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

// IsConnected returns true if the stream currently has a live connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		BytesTx:         c.bytesTx.Load(),
		BytesRx:         c.bytesRx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
	}
}

func (c *Client) currentConn() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

// handleIOFailure marks the connection dead and kicks off background
// reconnection. Only the first caller starts the goroutine.
func (c *Client) handleIOFailure() {
	if c.isClosed() {
		return
	}
	c.errorsTotal.Add(1)

	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}

	if wasConnected && c.reconnecting.CompareAndSwap(false, true) {
		c.wg.Add(1)
		go c.reconnectLoop()
	}
}

// reconnectLoop re-establishes the connection with exponential backoff.
// It exits only on success or shutdown.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		// Config was validated at Dial time; nothing to retry against.
		return
	}

	backoff := c.cfg.ReconnectInterval

	for {
		select {
		case <-c.done.Done():
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, network, address)
		cancel()

		if err != nil {
			c.errorsTotal.Add(1)
			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		c.deadlineMu.Lock()
		deadline := c.deadline
		c.deadlineMu.Unlock()
		if !deadline.IsZero() {
			conn.SetReadDeadline(deadline) //nolint:errcheck // Best-effort; next Read reapplies
		}

		c.connMu.Lock()
		// Closed while we were dialing; discard the new connection.
		if c.isClosed() {
			c.connMu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		return
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}
