package smtp

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/platy/smtp-dump/internal/cache"
	"github.com/pkg/errors"
)

func TestNextDeadline(t *testing.T) {
	start := time.Now()

	c := timeoutConn{timeout: time.Minute}
	if d := c.nextDeadline(); d.Before(start.Add(time.Minute)) {
		t.Errorf("inactivity deadline %s too early", d)
	}

	// the session deadline caps the inactivity deadline
	c.deadline = start.Add(time.Second)
	if d := c.nextDeadline(); !d.Equal(c.deadline) {
		t.Errorf("deadline = %s, want %s", d, c.deadline)
	}

	c = timeoutConn{}
	if d := c.nextDeadline(); !d.IsZero() {
		t.Errorf("no limits should mean no deadline, got %s", d)
	}

	c.expired.Store(true)
	if d := c.nextDeadline(); d.IsZero() || d.After(time.Now()) {
		t.Errorf("expired deadline = %s", d)
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(os.ErrDeadlineExceeded) {
		t.Error("os.ErrDeadlineExceeded")
	}
	if !isTimeout(errors.WithMessage(&net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, "Read")) {
		t.Error("wrapped net.OpError")
	}
	if isTimeout(errors.New("connection reset")) {
		t.Error("plain error")
	}
}

func TestGetRemoteHost(t *testing.T) {
	c, err := cache.NewCache()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	lookups := 0
	cfg := testConfig()
	cfg.ReverseDNS = true

	s := NewServer(cfg, &memStore{}, WithCache(c), WithResolver(func(addr string) ([]string, error) {
		lookups++
		if addr == "192.0.2.1" {
			return []string{"mail.example.org."}, nil
		}
		return nil, errors.New("no PTR record")
	}))

	for i := 0; i < 2; i++ {
		if host := s.getRemoteHost("192.0.2.1"); host != "mail.example.org" {
			t.Errorf("host = '%s'", host)
		}
		if host := s.getRemoteHost("192.0.2.2"); host != "" {
			t.Errorf("host = '%s'", host)
		}
	}
	if lookups == 0 {
		t.Error("resolver was never called")
	}

	s.cfg.ReverseDNS = false
	lookups = 0
	if host := s.getRemoteHost("192.0.2.3"); host != "" || lookups != 0 {
		t.Errorf("lookup with reverse dns disabled: '%s' %d", host, lookups)
	}
}
