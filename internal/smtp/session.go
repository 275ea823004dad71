package smtp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/platy/smtp-dump/internal/logger"
	"github.com/platy/smtp-dump/internal/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type InboundSession struct {
	start time.Time

	ID uuid.UUID

	// references server
	server *Server

	// connection, the reader and writer belong to this session only
	conn *timeoutConn
	r    *reader
	w    *bufio.Writer

	// peer
	RemoteAddr string
	RemoteHost string
	Helo       string
	esmtp      bool

	state State

	// envelope
	From    string
	To      []string
	Message bytes.Buffer
}

// initialise a new inbound session
func (s *Server) newInboundSession(conn Conn) (*InboundSession, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithMessage(err, "NewRandom")
	}

	start := time.Now()
	tc := newTimeoutConn(conn, s.cfg, start)

	session := InboundSession{
		start:      start,
		ID:         id,
		server:     s,
		conn:       tc,
		r:          newReader(tc),
		w:          bufio.NewWriter(tc),
		RemoteAddr: remoteIP(remoteAddr(conn)),
		state:      StateInitial,
	}

	return &session, nil
}

func (s *InboundSession) String() string {
	return fmt.Sprintf("is-%s", s.ID)
}

// State is the current protocol state.
func (s *InboundSession) State() State {
	return s.state
}

func (s *InboundSession) serve(ctx context.Context) {
	defer s.Logout()

	stop := context.AfterFunc(ctx, s.conn.expire)
	defer stop()

	log.Printf("%s - Connect - %s", s, s.RemoteAddr)

	s.reply(220, "%s ESMTP ready", s.server.cfg.Domain)
	if err := s.w.Flush(); err != nil {
		s.fail(ctx, err)
		return
	}

	for {
		line, err := s.r.ReadLine(s.server.cfg.MaxLineLength)
		if err == errLineTooLong {
			log.Debugf("%s - ReadLine - line too long", s)
			s.replyErr(errLineLength)
		} else if err != nil {
			s.fail(ctx, err)
			return
		} else {
			quit, err := s.handle(ctx, string(line))
			if err != nil {
				s.fail(ctx, err)
				return
			}
			if quit {
				s.w.Flush()
				return
			}
		}

		// pipelined commands are answered together
		if s.r.Buffered() == 0 {
			if err := s.w.Flush(); err != nil {
				s.fail(ctx, err)
				return
			}
		}
	}
}

// handle answers one command line. Rejected commands are answered and
// leave the session open, only I/O errors are returned.
func (s *InboundSession) handle(ctx context.Context, line string) (bool, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		log.Debugf("%s - ParseCommand - '%s': %s", s, line, err)
		metrics.Commands.WithLabelValues("invalid").Inc()
		s.replyErr(err)
		return false, nil
	}

	metrics.Commands.WithLabelValues(cmd.Verb.String()).Inc()

	switch cmd.Verb {
	case VerbHelo:
		s.Hello(cmd)
		s.reply(250, "%s", s.server.cfg.Domain)

	case VerbEhlo:
		s.Hello(cmd)
		size := "SIZE"
		if s.server.cfg.MaxMessageSize > 0 {
			size = fmt.Sprintf("SIZE %d", s.server.cfg.MaxMessageSize)
		}
		s.replyLines(250,
			s.server.cfg.Domain,
			"PIPELINING",
			size,
			"8BITMIME",
			"ENHANCEDSTATUSCODES",
		)

	case VerbMail:
		if err := s.Mail(cmd.Addr); err != nil {
			s.replyErr(err)
			break
		}
		s.reply(250, "2.1.0 Ok")

	case VerbRcpt:
		if err := s.Rcpt(cmd.Addr); err != nil {
			s.replyErr(err)
			break
		}
		s.reply(250, "2.1.5 Ok")

	case VerbData:
		id, err := s.Data(ctx)
		if err != nil {
			var se *smtp.SMTPError
			if !errors.As(err, &se) {
				return false, err
			}
			s.replyErr(err)
			break
		}
		s.reply(250, "2.0.0 Ok: queued as %s", id)

	case VerbRset:
		s.Reset()
		s.reply(250, "2.0.0 Ok")

	case VerbNoop:
		s.reply(250, "2.0.0 Ok")

	case VerbQuit:
		s.reply(221, "2.0.0 Bye")
		return true, nil
	}

	return false, nil
}

// fail ends the session on a read or write error.
func (s *InboundSession) fail(ctx context.Context, err error) {
	switch {
	case isTimeout(err) && ctx.Err() != nil:
		log.Printf("%s - Shutdown - in state %s", s, s.state)
		s.reply(421, "4.3.2 Service shutting down")
		s.w.Flush()

	case isTimeout(err):
		log.Printf("%s - Timeout - in state %s after %s", s, s.state, time.Since(s.start))
		metrics.Timeouts.Inc()
		s.server.publishLogEntry(s.logEntry(logger.EntryTypeTimeout, "timeout exceeded"))
		s.reply(421, "4.4.2 %s Error: timeout exceeded", s.server.cfg.Domain)
		s.w.Flush()

	case err == io.EOF:
		log.Debugf("%s - Disconnect - in state %s", s, s.state)

	default:
		log.Debugf("%s - Connection error - in state %s: %s", s, s.state, err)
	}

	if s.state == StateReceivingData {
		log.Printf("%s - Data - aborted after %d bytes", s, s.Message.Len())
		metrics.Messages.WithLabelValues(metrics.ResultAborted).Inc()
		if !isTimeout(err) {
			s.server.publishLogEntry(s.logEntry(logger.EntryTypeAbort, err.Error()))
		}
	}
}

func (s *InboundSession) reply(code int, format string, args ...interface{}) {
	fmt.Fprintf(s.w, "%d %s\r\n", code, fmt.Sprintf(format, args...))
}

// replyLines writes a multi-line reply.
func (s *InboundSession) replyLines(code int, lines ...string) {
	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		fmt.Fprintf(s.w, "%d%s%s\r\n", code, sep, line)
	}
}

func (s *InboundSession) replyErr(err error) {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		s.reply(se.Code, "%s", se.Message)
		return
	}
	s.reply(451, "4.3.0 Error: local error")
}

func (s *InboundSession) logEntry(etype logger.EntryType, status string) logger.Entry {
	return logger.Entry{
		SessionID:  s.ID,
		RemoteAddr: s.RemoteAddr,
		Helo:       s.Helo,
		FromEmail:  s.From,
		ToEmails:   append([]string(nil), s.To...),
		Etype:      etype,
		Status:     status,
		Size:       s.Message.Len(),
	}
}

func remoteIP(addr net.Addr) string {
	switch a := addr.(type) {
	case nil:
		return ""
	case *net.TCPAddr:
		return a.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return strings.TrimSpace(addr.String())
	}
	return host
}
