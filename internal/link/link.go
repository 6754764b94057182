// Package link owns the single persistent TCP connection between the client
// proxy and the offshore server. Dial-with-retry is grounded on go-rawhttp's
// pkg/transport.Transport.connectTCP (net.Dialer with a timeout, wrapped in
// the package's structured error type); the Dialer seam uses
// golang.org/x/net/proxy.Dialer, the same interface go-rawhttp's transport
// uses for upstream SOCKS/HTTP proxy chains, so a future chained deployment
// (link reaches the offshore server via an intermediate proxy) only needs a
// different Dialer value, not a different call site.
package link

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// Manager owns the lazily-dialed link to the offshore server: a socket plus
// its two scoped buffered I/O adapters, guarded by a mutex so that
// concurrent Ensure/Reset calls cannot leak sockets.
type Manager struct {
	addr   string
	dialer proxy.Dialer

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewManager returns a Manager that dials addr ("host:port") on demand.
// dialer defaults to a plain *net.Dialer with the package's connect
// timeout when nil.
func NewManager(addr string, dialer proxy.Dialer) *Manager {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: constants.LinkDialTimeout, KeepAlive: 30 * time.Second}
	}
	return &Manager{addr: addr, dialer: dialer}
}

// Ensure returns a ready (reader, writer) pair, dialing if necessary. It
// retries up to constants.LinkDialAttempts times with backoff
// constants.LinkBackoffBase * 2^i, and fails with a LinkUnavailable error
// once the budget is spent.
func (m *Manager) Ensure() (*bufio.Reader, *bufio.Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return m.r, m.w, nil
	}

	var lastErr error
	for i := 0; i < constants.LinkDialAttempts; i++ {
		conn, err := m.dialer.Dial("tcp", m.addr)
		if err == nil {
			m.conn = conn
			m.r = bufio.NewReader(conn)
			m.w = bufio.NewWriter(conn)
			return m.r, m.w, nil
		}
		lastErr = err
		if i < constants.LinkDialAttempts-1 {
			time.Sleep(constants.LinkBackoffBase * time.Duration(1<<uint(i)))
		}
	}
	return nil, nil, shiperrors.NewLinkUnavailable(m.addr, lastErr)
}

// Reset closes the reader, writer, and socket and clears them. Safe to call
// multiple times, and safe even if the link was never established.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Manager) resetLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.r = nil
	m.w = nil
}

// Addr returns the configured offshore server address, for logging.
func (m *Manager) Addr() string { return m.addr }

// String implements fmt.Stringer for log lines.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return fmt.Sprintf("link(%s, disconnected)", m.addr)
	}
	return fmt.Sprintf("link(%s, connected)", m.addr)
}
