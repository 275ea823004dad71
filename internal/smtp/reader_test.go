package smtp

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadLine(t *testing.T) {
	r := newReader(strings.NewReader("HELO a\r\nNOOP\nRSET\r\n\r\n"))

	for _, want := range []string{"HELO a", "NOOP", "RSET", ""} {
		line, err := r.ReadLine(64)
		if err != nil {
			t.Fatalf("ReadLine: %s", err)
		}
		if string(line) != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}

	if _, err := r.ReadLine(64); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReadLineTooLong(t *testing.T) {
	long := strings.Repeat("x", 10000)
	r := newReader(strings.NewReader(long + "\r\nNOOP\r\n" + "0123456789\r\n"))

	if _, err := r.ReadLine(100); err != errLineTooLong {
		t.Fatalf("expected errLineTooLong, got %v", err)
	}

	// the rest of the long line is discarded
	line, err := r.ReadLine(100)
	if err != nil || string(line) != "NOOP" {
		t.Fatalf("got %q, %v", line, err)
	}

	// exactly at the limit
	line, err = r.ReadLine(10)
	if err != nil || string(line) != "0123456789" {
		t.Fatalf("got %q, %v", line, err)
	}
}

func TestReadLineUnexpectedEOF(t *testing.T) {
	r := newReader(strings.NewReader("HELO a\r\nNOO"))

	if _, err := r.ReadLine(64); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadLine(64); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadData(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"crlf",
			"Subject: hi\r\n\r\nbody\r\n.\r\n",
			"Subject: hi\r\n\r\nbody\r\n",
		},
		{
			"bare lf is canonicalized",
			"Subject: hi\n\nbody\n.\n",
			"Subject: hi\r\n\r\nbody\r\n",
		},
		{
			"dot stuffing",
			"..\r\n..leading\r\n...\r\n.\r\n",
			".\r\n.leading\r\n..\r\n",
		},
		{
			"dot prefixed lines are not terminators",
			".x\r\n. \r\n.\r\n",
			"x\r\n \r\n",
		},
		{
			"empty message",
			".\r\n",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReader(strings.NewReader(tt.in + "QUIT\r\n"))

			var buf bytes.Buffer
			if err := r.ReadData(&buf, 1<<20); err != nil {
				t.Fatalf("ReadData: %s", err)
			}
			if buf.String() != tt.want {
				t.Errorf("body = %q, want %q", buf.String(), tt.want)
			}

			// the stream continues after the terminator
			line, err := r.ReadLine(64)
			if err != nil || string(line) != "QUIT" {
				t.Errorf("after data got %q, %v", line, err)
			}
		})
	}
}

func TestReadDataTooLarge(t *testing.T) {
	body := strings.Repeat("0123456789\r\n", 100)
	r := newReader(strings.NewReader(body + ".\r\nQUIT\r\n"))

	var buf bytes.Buffer
	if err := r.ReadData(&buf, 500); err != errMessageTooLarge {
		t.Fatalf("expected errMessageTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("buffer kept %d bytes", buf.Len())
	}

	line, err := r.ReadLine(64)
	if err != nil || string(line) != "QUIT" {
		t.Errorf("after data got %q, %v", line, err)
	}
}

func TestReadDataSingleHugeLine(t *testing.T) {
	r := newReader(strings.NewReader(strings.Repeat("x", 100000) + "\r\n.\r\nQUIT\r\n"))

	var buf bytes.Buffer
	if err := r.ReadData(&buf, 1000); err != errMessageTooLarge {
		t.Fatalf("expected errMessageTooLarge, got %v", err)
	}

	line, err := r.ReadLine(64)
	if err != nil || string(line) != "QUIT" {
		t.Errorf("after data got %q, %v", line, err)
	}
}

func TestReadDataExactLimit(t *testing.T) {
	r := newReader(strings.NewReader("12345678\r\n.\r\n"))

	var buf bytes.Buffer
	if err := r.ReadData(&buf, 10); err != nil {
		t.Fatalf("ReadData: %s", err)
	}
	if buf.String() != "12345678\r\n" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestReadDataUnexpectedEOF(t *testing.T) {
	for _, in := range []string{"", "line\r\n", "line\r\npartial"} {
		r := newReader(strings.NewReader(in))

		var buf bytes.Buffer
		if err := r.ReadData(&buf, 1<<20); err != io.ErrUnexpectedEOF {
			t.Errorf("%q: expected io.ErrUnexpectedEOF, got %v", in, err)
		}
	}
}
