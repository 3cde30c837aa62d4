package source

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// lexState is the state of the statement splitter.
type lexState int

const (
	stateNormal lexState = iota
	stateQuoted
)

// Split reads SQL text and returns its statements. A ';' outside a
// single-quoted literal ends a statement. Inside a literal, '' is an escaped
// quote and does not end the literal. Statements are trimmed, empty ones are
// dropped, and the terminating ';' is not included. Input is handled byte by
// byte, so text that is not valid UTF-8 reaches the engine unchanged.
func Split(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)

	var (
		statements []string
		current    strings.Builder
		state      = stateNormal
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			statements = append(statements, s)
		}
		current.Reset()
	}

	for {
		ch, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch state {
		case stateNormal:
			switch ch {
			case '\'':
				state = stateQuoted
				current.WriteByte(ch)
			case ';':
				flush()
			default:
				current.WriteByte(ch)
			}

		case stateQuoted:
			current.WriteByte(ch)
			if ch != '\'' {
				continue
			}
			next, err := br.ReadByte()
			switch {
			case errors.Is(err, io.EOF):
				state = stateNormal
			case err != nil:
				return nil, err
			case next == '\'':
				// Escaped quote; stay inside the literal.
				current.WriteByte(next)
			default:
				state = stateNormal
				if err := br.UnreadByte(); err != nil {
					return nil, err
				}
			}
		}
	}

	flush()
	return statements, nil
}

// SplitString is Split for in-memory text.
func SplitString(s string) []string {
	// Reading from a strings.Reader cannot fail.
	statements, _ := Split(strings.NewReader(s))
	return statements
}
