package smtp

import (
	"strings"

	"github.com/emersion/go-smtp"
)

// Verb is the closed set of commands a session understands.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbHelo
	VerbEhlo
	VerbMail
	VerbRcpt
	VerbData
	VerbRset
	VerbNoop
	VerbQuit
	// VerbUnsupported is a standard command this server does not implement.
	VerbUnsupported
)

var verbs = map[string]Verb{
	"HELO":     VerbHelo,
	"EHLO":     VerbEhlo,
	"MAIL":     VerbMail,
	"RCPT":     VerbRcpt,
	"DATA":     VerbData,
	"RSET":     VerbRset,
	"NOOP":     VerbNoop,
	"QUIT":     VerbQuit,
	"VRFY":     VerbUnsupported,
	"EXPN":     VerbUnsupported,
	"HELP":     VerbUnsupported,
	"STARTTLS": VerbUnsupported,
	"AUTH":     VerbUnsupported,
	"TURN":     VerbUnsupported,
	"ETRN":     VerbUnsupported,
	"BDAT":     VerbUnsupported,
	"SEND":     VerbUnsupported,
	"SOML":     VerbUnsupported,
	"SAML":     VerbUnsupported,
}

func (v Verb) String() string {
	switch v {
	case VerbHelo:
		return "HELO"
	case VerbEhlo:
		return "EHLO"
	case VerbMail:
		return "MAIL"
	case VerbRcpt:
		return "RCPT"
	case VerbData:
		return "DATA"
	case VerbRset:
		return "RSET"
	case VerbNoop:
		return "NOOP"
	case VerbQuit:
		return "QUIT"
	case VerbUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Command is one parsed command line.
type Command struct {
	Verb Verb

	// Arg is everything after the verb, trimmed.
	Arg string

	// Addr is the HELO/EHLO domain or the MAIL/RCPT path without
	// angle brackets.
	Addr string
}

// replies for rejected commands
var (
	errSyntax       = &smtp.SMTPError{Code: 500, Message: "5.5.2 Error: bad syntax"}
	errUnrecognized = &smtp.SMTPError{Code: 500, Message: "5.5.2 Error: command not recognized"}
	errLineLength   = &smtp.SMTPError{Code: 500, Message: "5.5.2 Error: line too long"}
	errNotImpl      = &smtp.SMTPError{Code: 502, Message: "5.5.1 Error: command not implemented"}
	errHeloSyntax   = &smtp.SMTPError{Code: 501, Message: "5.5.4 Syntax: HELO hostname"}
	errEhloSyntax   = &smtp.SMTPError{Code: 501, Message: "5.5.4 Syntax: EHLO hostname"}
	errMailSyntax   = &smtp.SMTPError{Code: 501, Message: "5.5.4 Syntax: MAIL FROM:<address>"}
	errRcptSyntax   = &smtp.SMTPError{Code: 501, Message: "5.5.4 Syntax: RCPT TO:<address>"}
	errBadAddress   = &smtp.SMTPError{Code: 501, Message: "5.1.7 Error: bad address syntax"}
	errNoArgs       = &smtp.SMTPError{Code: 501, Message: "5.5.4 Error: no arguments allowed"}
)

// ParseCommand parses a command line. Rejected lines return an
// *smtp.SMTPError carrying the reply.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return Command{}, errSyntax
	}

	name, arg := line, ""
	if idx := strings.IndexAny(line, " \t"); idx >= 0 {
		name, arg = line[:idx], strings.TrimSpace(line[idx+1:])
	}

	verb, ok := verbs[strings.ToUpper(name)]
	if !ok {
		return Command{}, errUnrecognized
	}

	cmd := Command{Verb: verb, Arg: arg}

	switch verb {
	case VerbUnsupported:
		return Command{}, errNotImpl

	case VerbHelo, VerbEhlo:
		fields := strings.Fields(arg)
		if len(fields) == 0 {
			if verb == VerbHelo {
				return Command{}, errHeloSyntax
			}
			return Command{}, errEhloSyntax
		}
		if hasControl(fields[0]) {
			return Command{}, errBadAddress
		}
		cmd.Addr = fields[0]

	case VerbMail:
		addr, err := parsePath(arg, "FROM:", true)
		if err != nil {
			if err == errBadAddress {
				return Command{}, err
			}
			return Command{}, errMailSyntax
		}
		cmd.Addr = addr

	case VerbRcpt:
		addr, err := parsePath(arg, "TO:", false)
		if err != nil {
			if err == errBadAddress {
				return Command{}, err
			}
			return Command{}, errRcptSyntax
		}
		cmd.Addr = addr

	case VerbData, VerbRset, VerbQuit:
		if len(arg) > 0 {
			return Command{}, errNoArgs
		}
	}

	return cmd, nil
}

// parsePath extracts the address from "FROM:<addr> params" or
// "TO:<addr> params". ESMTP parameters are ignored.
func parsePath(arg, prefix string, allowEmpty bool) (string, error) {
	if len(arg) < len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", errSyntax
	}

	rest := strings.TrimLeft(arg[len(prefix):], " \t")
	if len(rest) == 0 {
		return "", errSyntax
	}

	var addr string
	if strings.HasPrefix(rest, "<") {
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return "", errSyntax
		}
		addr = rest[1:end]
		if params := rest[end+1:]; len(params) > 0 && params[0] != ' ' && params[0] != '\t' {
			return "", errSyntax
		}
	} else {
		// lenient form without brackets
		addr = rest
		if idx := strings.IndexAny(rest, " \t"); idx >= 0 {
			addr = rest[:idx]
		}
	}

	// drop an obsolete source route, "@a,@b:user@host"
	if strings.HasPrefix(addr, "@") {
		idx := strings.IndexByte(addr, ':')
		if idx < 0 {
			return "", errBadAddress
		}
		addr = addr[idx+1:]
	}

	if hasControl(addr) || strings.ContainsAny(addr, "<>") {
		return "", errBadAddress
	}

	if len(addr) == 0 && !allowEmpty {
		return "", errSyntax
	}

	return addr, nil
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}
