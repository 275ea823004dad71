package inbox

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrCollision is returned when an entry with the same name is already
// published. Existing entries are never overwritten.
var ErrCollision = errors.New("inbox entry already exists")

// Layout decides where under the inbox an entry is published.
type Layout int

const (
	// LayoutFlat publishes every entry directly in the inbox directory.
	LayoutFlat Layout = iota
	// LayoutSender groups entries in a directory per sender domain.
	LayoutSender
)

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return LayoutFlat, nil
	case "sender":
		return LayoutSender, nil
	}
	return LayoutFlat, errors.Errorf("unknown inbox layout '%s'", s)
}

func (l Layout) String() string {
	if l == LayoutSender {
		return "sender"
	}
	return "flat"
}

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Inbox stages messages in a staging directory and publishes them into
// the inbox directory with a hard link, so a reader of the inbox only
// ever sees complete entries. Both directories must live on the same
// filesystem.
type Inbox struct {
	dir     string
	staging string
	layout  Layout

	// wraps the staging file writer, tests use it to stall or fail writes
	wrap func(io.Writer) io.Writer
}

func New(dir, staging string, layout Layout) (*Inbox, error) {
	if len(dir) == 0 {
		return nil, errors.New("inbox directory is required")
	}
	if len(staging) == 0 {
		return nil, errors.New("staging directory is required")
	}

	dir = filepath.Clean(dir)
	staging = filepath.Clean(staging)
	if dir == staging {
		return nil, errors.Errorf("staging directory must differ from the inbox '%s'", dir)
	}

	for _, d := range []string{dir, staging} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return nil, errors.WithMessagef(err, "MkdirAll '%s'", d)
		}
	}

	i := Inbox{
		dir:     dir,
		staging: staging,
		layout:  layout,
	}

	return &i, nil
}

func (i *Inbox) Dir() string { return i.dir }

func (i *Inbox) StagingDir() string { return i.staging }

// Publish writes msg to the staging directory and links it into the inbox.
// It returns the published path. On error nothing is left in the inbox.
func (i *Inbox) Publish(ctx context.Context, msg *Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := entryName(msg)

	dir := i.dir
	if i.layout == LayoutSender {
		dir = filepath.Join(i.dir, senderDir(msg.From))
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return "", errors.WithMessagef(err, "MkdirAll '%s'", dir)
		}
	}

	staged := filepath.Join(i.staging, name)
	if err := i.stage(staged, msg); err != nil {
		return "", errors.WithMessage(err, "stage")
	}

	// the staged name is only a second link once published
	defer func() {
		if err := os.Remove(staged); err != nil {
			log.Warnf("inbox - unable to remove staged file '%s': %s", staged, err)
		}
	}()

	path := filepath.Join(dir, name)
	if err := os.Link(staged, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", errors.Wrapf(ErrCollision, "'%s'", path)
		}
		if errors.Is(err, syscall.EXDEV) {
			return "", errors.Errorf("staging '%s' and inbox '%s' are on different filesystems", i.staging, i.dir)
		}
		return "", errors.WithMessage(err, "Link")
	}

	return path, nil
}

func (i *Inbox) stage(path string, msg *Message) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return errors.WithMessage(err, "OpenFile")
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			f.Close()
		}
		os.Remove(path)
	}()

	var w io.Writer = f
	if i.wrap != nil {
		w = i.wrap(w)
	}

	bw := bufio.NewWriter(w)
	if _, err := msg.WriteTo(bw); err != nil {
		return errors.WithMessage(err, "WriteTo")
	}

	if err := bw.Flush(); err != nil {
		return errors.WithMessage(err, "Flush")
	}

	if err := f.Sync(); err != nil {
		return errors.WithMessage(err, "Sync")
	}

	closed = true
	if err := f.Close(); err != nil {
		return errors.WithMessage(err, "Close")
	}

	return nil
}

// List returns the paths of all published entries, sorted.
func (i *Inbox) List() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(i.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// staging may be nested inside the inbox
			if path == i.staging {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ".eml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "WalkDir")
	}

	sort.Strings(paths)

	return paths, nil
}

// entryName is unique per message id and sorts by receive time.
func entryName(msg *Message) string {
	t := msg.ReceivedAt
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("20060102150405.000000") + "." + msg.ID.String() + ".eml"
}

// senderDir maps a reverse path to a safe single path element.
func senderDir(from string) string {
	domain := from
	if idx := strings.LastIndexByte(from, '@'); idx >= 0 {
		domain = from[idx+1:]
	}
	domain = strings.ToLower(domain)

	if len(domain) == 0 {
		return "_"
	}

	b := []byte(domain)
	for idx, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '-':
		default:
			b[idx] = '_'
		}
	}

	if b[0] == '.' {
		return "_" + string(b)
	}

	return string(b)
}
