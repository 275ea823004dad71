package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/isayme/go-amqp-reconnect/rabbitmq"
	"github.com/platy/smtp-dump/internal/cache"
	"github.com/platy/smtp-dump/internal/config"
	"github.com/platy/smtp-dump/internal/inbox"
	"github.com/platy/smtp-dump/internal/smtp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.WithMessage(err, "config.Load")
	}

	if err := cfg.Validate(); err != nil {
		return errors.WithMessage(err, "Validate")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	box, err := inbox.New(cfg.InboxDir, cfg.StagingDir, cfg.InboxLayout())
	if err != nil {
		return errors.WithMessage(err, "inbox.New")
	}

	log.Printf("Publishing to '%s' via '%s' (%s layout)", box.Dir(), box.StagingDir(), cfg.InboxLayout())

	rdnsCache, err := cache.NewCache()
	if err != nil {
		return errors.WithMessage(err, "NewCache")
	}
	defer rdnsCache.Close()

	opts := []smtp.Option{
		smtp.WithCache(rdnsCache),
	}

	// delivery events are optional
	if len(cfg.MQURL) > 0 {
		rabbitConn, err := rabbitmq.Dial(cfg.MQURL)
		if err != nil {
			return errors.WithMessage(err, "rabbitmq.Dial")
		}
		defer rabbitConn.Close()

		logPublisher, err := createPublisher(rabbitConn, smtp.LogQueue)
		if err != nil {
			return errors.WithMessage(err, "createPublisher logs")
		}
		defer logPublisher.Close()

		log.Println("Connected to the MQ")

		opts = append(opts, smtp.WithLogPublisher(logPublisher))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := smtp.NewServer(cfg.Server(), box, opts...)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return server.Run(ctx)
	})

	if len(cfg.MetricsAddr) > 0 {
		eg.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr)
		})
	}

	log.Println("Starting SMTP Server")

	if err := eg.Wait(); err != nil {
		return errors.WithMessage(err, "Wait")
	}

	log.Println("Stopped SMTP Server")

	return nil
}

func createPublisher(conn *rabbitmq.Connection, queueName string) (*rabbitmq.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.WithMessage(err, "publisher.Channel")
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
		return nil, errors.WithMessage(err, "QueueDeclare")
	}

	return ch, nil
}
