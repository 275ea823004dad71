package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/isayme/go-amqp-reconnect/rabbitmq"
	"github.com/platy/smtp-dump/internal/config"
	"github.com/platy/smtp-dump/internal/logger"
	"github.com/platy/smtp-dump/internal/smtp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/streadway/amqp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	asJSON := pflag.Bool("json", false, "log entries as json")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.WithMessage(err, "config.Load")
	}

	if len(cfg.MQURL) == 0 {
		return errors.New("mq_url is required")
	}

	if *asJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// setup rabbitmq connection
	rabbitConn, err := rabbitmq.Dial(cfg.MQURL)
	if err != nil {
		return errors.WithMessage(err, "rabbitmq.Dial")
	}
	defer rabbitConn.Close()

	hostname, err := os.Hostname()
	if err != nil {
		return errors.WithMessage(err, "Hostname")
	}

	logsSubscriberCh, logsSubscriber, err := createSubscriber(rabbitConn, smtp.LogQueue, hostname+"logs")
	if err != nil {
		return errors.WithMessage(err, "createSubscriber logs")
	}
	defer logsSubscriberCh.Close()

	log.Println("Connected to the MQ")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-logsSubscriber:
			if !ok {
				return errors.New("logs subscription closed")
			}

			var e logger.Entry
			if err := json.Unmarshal(msg.Body, &e); err != nil {
				log.Printf("Unable to decode entry: %s", err)
				msg.Nack(false, false)
				continue
			}

			logEntry(e)

			msg.Ack(false)
		}
	}
}

func logEntry(e logger.Entry) {
	fields := log.Fields{
		"time":    e.EncodeTime(),
		"session": e.SessionID,
		"remote":  e.RemoteAddr,
		"helo":    e.Helo,
		"from":    e.FromEmail,
		"to":      strings.Join(e.ToEmails, ","),
	}

	if e.Etype == logger.EntryTypeReceive {
		fields["message"] = e.MessageID
		fields["path"] = e.Path
		fields["size"] = e.Size
	}

	entry := log.WithFields(fields)

	switch e.Etype {
	case logger.EntryTypeReceive:
		entry.Info(e.Etype)
	default:
		entry.Warnf("%s: %s", e.Etype, e.Status)
	}
}

func createSubscriber(conn *rabbitmq.Connection, queueName, name string) (*rabbitmq.Channel, <-chan amqp.Delivery, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "subscriber.Channel")
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "QueueDeclare")
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, nil, errors.WithMessage(err, "Qos")
	}

	msgs, err := ch.Consume(
		queueName,
		name,
		false, // autoack
		false, // exclusive
		false, // nolocal
		false, // nowait
		nil,
	)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "ch.Consume")
	}

	return ch, msgs, nil
}
