package proto

import (
	"errors"
	"strings"
)

// ErrEmptyCommand is returned when a payload holds no command name: it is
// empty, all whitespace, or starts with a bare ":".
var ErrEmptyCommand = errors.New("empty command name")

// Command is the structural view of one decoded payload. Every field is a
// slice of the original payload string; decoding copies nothing.
type Command struct {
	Name string
	Arg1 string
	Arg2 string
	Text string
}

// nextToken skips leading spaces and cuts the next space-delimited token.
func nextToken(s string) (token, rest string) {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	if s == "" {
		return "", ""
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Parse decodes a payload into a Command. Free text is everything after the
// first " :"; a payload opening with a bare ":" leaves no command name and
// fails with ErrEmptyCommand. Tokens past arg2 are ignored.
func Parse(payload string) (Command, error) {
	var c Command

	head := payload
	if i := strings.Index(head, " :"); i >= 0 {
		c.Text = head[i+2:]
		head = head[:i]
	} else if strings.HasPrefix(head, ":") {
		c.Text = head[1:]
		head = ""
	}

	c.Name, head = nextToken(head)
	if c.Name == "" {
		return Command{}, ErrEmptyCommand
	}
	c.Arg1, head = nextToken(head)
	if c.Arg1 != "" {
		c.Arg2, _ = nextToken(head)
	}
	return c, nil
}

// Is reports whether the command name matches, ignoring case.
func (c Command) Is(name string) bool {
	return strings.EqualFold(c.Name, name)
}

// Format renders the canonical textual form of a command. Empty optional
// fields are omitted; arg2 is only emitted when arg1 is present, and text
// gets the " :" prefix only when non-empty.
func Format(name, arg1, arg2, text string) (string, error) {
	if name == "" {
		return "", ErrEmptyCommand
	}

	var b strings.Builder
	b.WriteString(name)
	if arg1 != "" {
		b.WriteByte(' ')
		b.WriteString(arg1)
		if arg2 != "" {
			b.WriteByte(' ')
			b.WriteString(arg2)
		}
	}
	if text != "" {
		b.WriteString(" :")
		b.WriteString(text)
	}
	return b.String(), nil
}
