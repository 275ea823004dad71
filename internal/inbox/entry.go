package inbox

import (
	"os"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"
)

// Entry is a published message read back from the inbox.
type Entry struct {
	Path    string
	From    string
	To      []string
	Subject string

	Envelope *enmime.Envelope
}

func ReadEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "Open")
	}
	defer f.Close()

	env, err := enmime.ReadEnvelope(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "ReadEnvelope '%s'", path)
	}

	entry := Entry{
		Path:     path,
		From:     unbracket(env.GetHeader("Return-Path")),
		Subject:  env.GetHeader("Subject"),
		Envelope: env,
	}

	for _, to := range env.GetHeaderValues("X-Envelope-To") {
		entry.To = append(entry.To, unbracket(to))
	}

	return &entry, nil
}

func unbracket(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	return strings.TrimSuffix(s, ">")
}
