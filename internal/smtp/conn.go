package smtp

import (
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Conn is the byte stream a session runs on. net.Conn satisfies it.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// timeoutConn pushes the read deadline forward before every read, so the
// deadline always measures the time since data last arrived. The session
// deadline caps it.
type timeoutConn struct {
	Conn

	timeout      time.Duration
	writeTimeout time.Duration
	deadline     time.Time

	// set on shutdown, expires every read from then on
	expired atomic.Bool
}

func newTimeoutConn(c Conn, cfg Config, start time.Time) *timeoutConn {
	tc := timeoutConn{
		Conn:         c,
		timeout:      cfg.CommandTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
	if cfg.SessionTimeout > 0 {
		tc.deadline = start.Add(cfg.SessionTimeout)
	}
	return &tc
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(c.nextDeadline()); err != nil {
		return 0, err
	}
	// expire may have run between nextDeadline and SetReadDeadline
	if c.expired.Load() {
		c.Conn.SetReadDeadline(time.Now())
	}
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// setTimeout changes the inactivity limit for the following reads.
func (c *timeoutConn) setTimeout(d time.Duration) {
	c.timeout = d
}

// expire makes the pending and all later reads fail with a timeout.
func (c *timeoutConn) expire() {
	c.expired.Store(true)
	c.Conn.SetReadDeadline(time.Now())
}

func (c *timeoutConn) nextDeadline() time.Time {
	now := time.Now()
	if c.expired.Load() {
		return now
	}

	var next time.Time
	if c.timeout > 0 {
		next = now.Add(c.timeout)
	}

	if !c.deadline.IsZero() && (next.IsZero() || c.deadline.Before(next)) {
		next = c.deadline
	}

	return next
}

// remoteAddr is the peer address when the stream is a network connection.
func remoteAddr(c Conn) net.Addr {
	if nc, ok := c.(interface{ RemoteAddr() net.Addr }); ok {
		return nc.RemoteAddr()
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
