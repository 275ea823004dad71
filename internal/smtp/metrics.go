package smtp

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/platy/smtp-dump/internal/logger"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher is the part of an amqp channel used for delivery events.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// LogQueue receives the json encoded logger.Entry values.
const LogQueue = "logs"

func (s *Server) publishLogEntry(entry logger.Entry) {
	if s.logPublisher == nil {
		return
	}

	b := s.bufferPool.Get().(*bytes.Buffer)
	defer s.bufferPool.Put(b)
	b.Reset()

	entry.Time = time.Now()

	if err := json.NewEncoder(b).Encode(entry); err != nil {
		log.Printf("Error publish entry encode: %s", err)
		return
	}

	msg := amqp.Publishing{
		Timestamp:   entry.Time,
		ContentType: "application/json",
		Body:        b.Bytes(),
	}

	// channels are not safe for concurrent publishing
	s.logMu.Lock()
	defer s.logMu.Unlock()

	err := s.logPublisher.Publish(
		"",
		LogQueue,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		log.Printf("Error publish entry: %s", err)
		return
	}
}
