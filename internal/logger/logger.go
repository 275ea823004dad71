package logger

import (
	"time"

	"github.com/google/uuid"
)

type EntryType int

const (
	EntryTypeReceive EntryType = iota
	EntryTypeReject
	EntryTypeTimeout
	EntryTypeAbort
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeReceive:
		return "receive"
	case EntryTypeReject:
		return "reject"
	case EntryTypeTimeout:
		return "timeout"
	case EntryTypeAbort:
		return "abort"
	}
	return "unknown"
}

// Entry is a delivery event published for every message outcome
// and for sessions that end mid transaction.
type Entry struct {
	Time time.Time

	// session and message ids, MessageID is nil when no
	// message was completed
	SessionID uuid.UUID
	MessageID uuid.UUID

	// peer
	RemoteAddr string
	Helo       string

	// envelope
	FromEmail string
	ToEmails  []string

	Etype EntryType

	Status string

	// inbox path for received messages
	Path string
	Size int
}

func (e Entry) EncodeTime() string {
	return e.Time.Format("20060102150405.000000")
}
