package smtp

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var (
	errLineTooLong     = errors.New("line too long")
	errMessageTooLarge = errors.New("message too large")
)

var crlf = []byte("\r\n")

// reader decodes the client side of a session. Its buffers belong to a
// single connection.
type reader struct {
	br   *bufio.Reader
	line []byte
}

func newReader(r io.Reader) *reader {
	return &reader{
		br: bufio.NewReader(r),
	}
}

// ReadLine returns the next line without its LF or CRLF terminator. The
// returned slice is only valid until the next call. A line longer than max
// bytes is consumed up to its terminator and reported as errLineTooLong.
// A stream that ends without a terminator returns io.ErrUnexpectedEOF when
// part of a line was read and io.EOF otherwise.
func (r *reader) ReadLine(max int) ([]byte, error) {
	r.line = r.line[:0]
	tooLong := false

	for {
		frag, err := r.br.ReadSlice('\n')
		if err == nil {
			if !tooLong {
				r.line = append(r.line, frag...)
			}
			break
		}

		if err != bufio.ErrBufferFull {
			if err == io.EOF && (len(frag) > 0 || len(r.line) > 0 || tooLong) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if !tooLong {
			r.line = append(r.line, frag...)
			if max > 0 && len(r.line) > max+1 {
				tooLong = true
				r.line = r.line[:0]
			}
		}
	}

	if tooLong {
		return nil, errLineTooLong
	}

	line := r.line[:len(r.line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if max > 0 && len(line) > max {
		return nil, errLineTooLong
	}

	return line, nil
}

// ReadData reads a dot-stuffed message body up to the line holding a
// single period. One leading period is removed from every other line that
// starts with one, and every line is written to w with a CRLF terminator
// whatever the client sent. When the decoded body would exceed max bytes
// the rest is drained up to the terminator and errMessageTooLarge is
// returned with w reset. A stream that ends before the terminator returns
// io.ErrUnexpectedEOF.
func (r *reader) ReadData(w *bytes.Buffer, max int64) error {
	lineMax := 0
	if max > 0 {
		// a longer line can never fit, so never buffer one
		lineMax = int(max) + 1
	}

	tooLarge := false

	for {
		line, err := r.ReadLine(lineMax)
		switch {
		case err == errLineTooLong:
			tooLarge = true
			w.Reset()
			continue
		case err == io.EOF:
			return io.ErrUnexpectedEOF
		case err != nil:
			return err
		}

		if len(line) == 1 && line[0] == '.' {
			break
		}

		if len(line) > 0 && line[0] == '.' {
			line = line[1:]
		}

		if tooLarge {
			continue
		}

		if max > 0 && int64(w.Len()+len(line)+len(crlf)) > max {
			tooLarge = true
			w.Reset()
			continue
		}

		w.Write(line)
		w.Write(crlf)
	}

	if tooLarge {
		return errMessageTooLarge
	}

	return nil
}

// Buffered reports whether pipelined input is waiting, replies can be
// held back until it is consumed.
func (r *reader) Buffered() int {
	return r.br.Buffered()
}
