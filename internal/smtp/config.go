package smtp

import (
	"os"
	"time"
)

// Config holds the listener address, the protocol limits and the timeouts
// of every session.
type Config struct {
	// Domain is the name used in the banner and Received headers.
	Domain string

	// Addr is the TCP address Run listens on.
	Addr string

	// CommandTimeout is the inactivity limit while waiting for a command,
	// DataTimeout while receiving a message body. SessionTimeout caps the
	// whole connection. Zero disables a limit.
	CommandTimeout time.Duration
	DataTimeout    time.Duration
	SessionTimeout time.Duration
	WriteTimeout   time.Duration

	MaxLineLength  int
	MaxMessageSize int64
	MaxRecipients  int

	// ReverseDNS looks up the peer name for the Received header.
	ReverseDNS bool
}

// DefaultConfig uses the minimum timeouts of RFC 5321 section 4.5.3.2.
func DefaultConfig() Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return Config{
		Domain:         hostname,
		Addr:           ":25",
		CommandTimeout: 5 * time.Minute,
		DataTimeout:    10 * time.Minute,
		SessionTimeout: time.Hour,
		WriteTimeout:   time.Minute,
		MaxLineLength:  4096,
		MaxMessageSize: 25 << 20,
		MaxRecipients:  100,
		ReverseDNS:     true,
	}
}
