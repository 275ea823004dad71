package smtp

import (
	"testing"

	"github.com/emersion/go-smtp"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		verb Verb
		addr string
		code int
	}{
		{"HELO client.example.org", VerbHelo, "client.example.org", 0},
		{"ehlo client.example.org extra", VerbEhlo, "client.example.org", 0},
		{"  Ehlo   client  ", VerbEhlo, "client", 0},
		{"HELO", VerbUnknown, "", 501},
		{"EHLO ", VerbUnknown, "", 501},

		{"MAIL FROM:<alice@example.org>", VerbMail, "alice@example.org", 0},
		{"mail from:<alice@example.org> SIZE=1000 BODY=8BITMIME", VerbMail, "alice@example.org", 0},
		{"MAIL FROM: <alice@example.org>", VerbMail, "alice@example.org", 0},
		{"MAIL FROM:alice@example.org", VerbMail, "alice@example.org", 0},
		{"MAIL FROM:<>", VerbMail, "", 0},
		{"MAIL FROM:<@relay.example:alice@example.org>", VerbMail, "alice@example.org", 0},
		{"MAIL FROM:", VerbUnknown, "", 501},
		{"MAIL TO:<alice@example.org>", VerbUnknown, "", 501},
		{"MAIL FROM:<alice@example.org", VerbUnknown, "", 501},
		{"MAIL FROM:<alice@example.org>SIZE=10", VerbUnknown, "", 501},
		{"MAIL FROM:<ali\x01ce@example.org>", VerbUnknown, "", 501},

		{"RCPT TO:<bob@example.org>", VerbRcpt, "bob@example.org", 0},
		{"rcpt to:<Bob.Smith+tag@Example.org> NOTIFY=NEVER", VerbRcpt, "Bob.Smith+tag@Example.org", 0},
		{"RCPT TO:<>", VerbUnknown, "", 501},
		{"RCPT FROM:<bob@example.org>", VerbUnknown, "", 501},

		{"DATA", VerbData, "", 0},
		{"data", VerbData, "", 0},
		{"DATA now", VerbUnknown, "", 501},
		{"RSET", VerbRset, "", 0},
		{"NOOP", VerbNoop, "", 0},
		{"NOOP anything goes", VerbNoop, "", 0},
		{"QUIT", VerbQuit, "", 0},

		{"VRFY bob", VerbUnknown, "", 502},
		{"STARTTLS", VerbUnknown, "", 502},
		{"AUTH PLAIN", VerbUnknown, "", 502},
		{"BDAT 100 LAST", VerbUnknown, "", 502},
		{"HELLO", VerbUnknown, "", 500},
		{"GET / HTTP/1.1", VerbUnknown, "", 500},
		{"", VerbUnknown, "", 500},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)

			if tt.code != 0 {
				se, ok := err.(*smtp.SMTPError)
				if !ok {
					t.Fatalf("expected *smtp.SMTPError, got %v", err)
				}
				if se.Code != tt.code {
					t.Errorf("code = %d, want %d (%s)", se.Code, tt.code, se.Message)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if cmd.Verb != tt.verb {
				t.Errorf("verb = %s, want %s", cmd.Verb, tt.verb)
			}
			if cmd.Addr != tt.addr {
				t.Errorf("addr = '%s', want '%s'", cmd.Addr, tt.addr)
			}
		})
	}
}

func TestVerbString(t *testing.T) {
	for name, verb := range verbs {
		if verb == VerbUnsupported {
			continue
		}
		if verb.String() != name {
			t.Errorf("%s.String() = %s", name, verb)
		}
	}
}
