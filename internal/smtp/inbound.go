package smtp

import (
	"bytes"
	"context"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/platy/smtp-dump/internal/inbox"
	"github.com/platy/smtp-dump/internal/logger"
	"github.com/platy/smtp-dump/internal/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	errNeedHelo          = &smtp.SMTPError{Code: 503, Message: "5.5.1 Error: send HELO/EHLO first"}
	errNeedMail          = &smtp.SMTPError{Code: 503, Message: "5.5.1 Error: need MAIL command"}
	errNeedRcpt          = &smtp.SMTPError{Code: 503, Message: "5.5.1 Error: need RCPT command"}
	errTooManyRecipients = &smtp.SMTPError{Code: 452, Message: "4.5.3 Error: too many recipients"}
	errTooLarge          = &smtp.SMTPError{Code: 552, Message: "5.3.4 Error: message exceeds fixed maximum message size"}
	errStorage           = &smtp.SMTPError{Code: 452, Message: "4.3.1 Error: insufficient system storage"}
)

// Hello records the peer identity and starts a fresh envelope.
func (s *InboundSession) Hello(cmd Command) {
	log.Printf("%s - Hello - '%s'", s, cmd.Addr)

	s.reset()
	s.Helo = cmd.Addr
	s.esmtp = cmd.Verb == VerbEhlo
	s.state = StateGreeted
}

func (s *InboundSession) Mail(from string) error {
	if s.state == StateInitial {
		return errNeedHelo
	}

	log.Printf("%s - Mail - From '%s'", s, from)

	s.From = from
	s.To = s.To[:0]
	s.state = StateHaveSender

	return nil
}

func (s *InboundSession) Rcpt(to string) error {
	if s.state != StateHaveSender && s.state != StateHaveRecipients {
		return errNeedMail
	}

	if max := s.server.cfg.MaxRecipients; max > 0 && len(s.To) >= max {
		log.Printf("%s - Rcpt - To: '%s' - over the limit of %d", s, to, max)
		return errTooManyRecipients
	}

	log.Printf("%s - Rcpt - To: '%s'", s, to)

	s.To = append(s.To, to)
	s.state = StateHaveRecipients

	return nil
}

// Data receives the message body and publishes it. The returned id names
// the stored message. Rejections are *smtp.SMTPError values, any other
// error means the connection is unusable.
func (s *InboundSession) Data(ctx context.Context) (string, error) {
	switch s.state {
	case StateHaveRecipients:
	case StateHaveSender:
		return "", errNeedRcpt
	default:
		return "", errNeedMail
	}

	s.reply(354, "End data with <CR><LF>.<CR><LF>")
	if err := s.w.Flush(); err != nil {
		return "", err
	}

	start := time.Now()

	s.state = StateReceivingData
	s.conn.setTimeout(s.server.cfg.DataTimeout)
	err := s.r.ReadData(&s.Message, s.server.cfg.MaxMessageSize)
	s.conn.setTimeout(s.server.cfg.CommandTimeout)

	switch {
	case err == errMessageTooLarge:
		log.Printf("%s - Data - message exceeds %d bytes", s, s.server.cfg.MaxMessageSize)
		metrics.Messages.WithLabelValues(metrics.ResultTooLarge).Inc()
		s.server.publishLogEntry(s.logEntry(logger.EntryTypeReject, errTooLarge.Message))
		s.Reset()
		return "", errTooLarge

	case err != nil:
		return "", err
	}

	msg, err := s.message()
	if err != nil {
		return "", err
	}

	// a message that arrived in full is stored even while shutting down
	path, err := s.server.store.Publish(context.WithoutCancel(ctx), msg)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())

	entry := s.logEntry(logger.EntryTypeReceive, "stored")
	entry.MessageID = msg.ID
	entry.Path = path

	s.Reset()

	if err != nil {
		log.Printf("%s - Data - Publish: %s", s, err)
		metrics.Messages.WithLabelValues(metrics.ResultRejected).Inc()
		entry.Etype = logger.EntryTypeReject
		entry.Status = err.Error()
		s.server.publishLogEntry(entry)
		return "", errStorage
	}

	log.Printf("%s - Data - stored %d bytes as '%s' in %s", s, len(msg.Body), path, time.Since(start))
	metrics.Messages.WithLabelValues(metrics.ResultStored).Inc()
	metrics.MessageSize.Observe(float64(len(msg.Body)))
	s.server.publishLogEntry(entry)

	return msg.ID.String(), nil
}

// message copies the transaction out of the session buffers.
func (s *InboundSession) message() (*inbox.Message, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithMessage(err, "NewRandom")
	}

	if len(s.RemoteHost) == 0 {
		s.RemoteHost = s.server.getRemoteHost(s.RemoteAddr)
	}

	msg := inbox.Message{
		ID:         id,
		From:       s.From,
		To:         append([]string(nil), s.To...),
		Body:       bytes.Clone(s.Message.Bytes()),
		ReceivedAt: time.Now(),
		Helo:       s.Helo,
		RemoteIP:   s.RemoteAddr,
		RemoteHost: s.RemoteHost,
		ServerName: s.server.cfg.Domain,
		ESMTP:      s.esmtp,
	}

	return &msg, nil
}

// Reset drops the envelope, the peer identity is kept.
func (s *InboundSession) Reset() {
	s.reset()
	s.state = StateGreeted
}

func (s *InboundSession) reset() {
	s.From = ""
	s.To = s.To[:0]
	s.Message.Reset()
}

func (s *InboundSession) Logout() error {
	log.Printf("%s - Logout - after %s", s, time.Since(s.start))
	return s.conn.Close()
}
