package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/platy/smtp-dump/internal/config"
	"github.com/platy/smtp-dump/internal/inbox"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	showText := pflag.BoolP("text", "t", false, "print the text body of every entry")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.WithMessage(err, "config.Load")
	}

	if err := cfg.Validate(); err != nil {
		return errors.WithMessage(err, "Validate")
	}

	box, err := inbox.New(cfg.InboxDir, cfg.StagingDir, cfg.InboxLayout())
	if err != nil {
		return errors.WithMessage(err, "inbox.New")
	}

	paths, err := box.List()
	if err != nil {
		return errors.WithMessage(err, "List")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tFROM\tTO\tSUBJECT")

	for _, path := range paths {
		entry, err := inbox.ReadEntry(path)
		if err != nil {
			log.Warnf("Skipping '%s': %s", path, err)
			continue
		}

		rel, err := filepath.Rel(box.Dir(), path)
		if err != nil {
			rel = path
		}

		from := entry.From
		if len(from) == 0 {
			from = "<>"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rel, from, strings.Join(entry.To, ","), entry.Subject)

		if *showText {
			tw.Flush()
			fmt.Printf("\n%s\n\n", strings.TrimSpace(entry.Envelope.Text))
		}
	}

	return tw.Flush()
}
