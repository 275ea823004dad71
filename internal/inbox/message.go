package inbox

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Message is a completed mail transaction. It must not be modified once
// handed to Publish.
type Message struct {
	ID uuid.UUID

	// envelope, To keeps the order and duplicates of the RCPT commands
	From string
	To   []string

	// decoded body, CRLF lines without the terminating dot line
	Body []byte

	// trace information for the Received header
	ReceivedAt time.Time
	Helo       string
	RemoteIP   string
	RemoteHost string
	ServerName string
	ESMTP      bool
}

// WriteTo writes the entry form of the message: the envelope as leading
// header lines followed by the body.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	var header bytes.Buffer

	// Return-Path and X-Envelope-To lines carry the envelope
	fmt.Fprintf(&header, "Return-Path: <%s>\r\n", m.From)
	for _, to := range m.To {
		fmt.Fprintf(&header, "X-Envelope-To: <%s>\r\n", to)
	}

	header.WriteString(m.receivedHeader())

	n, err := header.WriteTo(w)
	if err != nil {
		return n, err
	}

	written, err := w.Write(m.Body)
	return n + int64(written), err
}

func (m *Message) receivedHeader() string {
	host := m.RemoteHost
	if len(host) == 0 {
		host = "unknown"
	}

	with := "SMTP"
	if m.ESMTP {
		with = "ESMTP"
	}

	return fmt.Sprintf(
		"Received: from %s (%s [%s])\r\n\tby %s with %s id %s;\r\n\t%s\r\n",
		m.Helo,
		host,
		m.RemoteIP,
		m.ServerName,
		with,
		m.ID,
		m.ReceivedAt.Format("Mon, 02 Jan 2006 15:04:05 -0700 (MST)"),
	)
}
