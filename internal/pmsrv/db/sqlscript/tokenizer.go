// Package sqlscript splits multi-statement SQL scripts into executable
// statements and runs them against a tenant database. The splitter is a
// character-scan state machine, so semicolons inside string literals
// and comments are never mistaken for statement terminators. The
// executor tolerates idempotency-class failures (duplicate objects) and
// fails hard on everything else.
package sqlscript

import (
	"strings"
)

// scanState enumerates the tokenizer states.
type scanState int

const (
	stateNormal scanState = iota
	stateString
	stateLineComment
	stateBlockComment
)

// Split splits a raw SQL script into an ordered slice of trimmed,
// non-empty statements. Statements are terminated by semicolons outside
// string literals and comments. A trailing statement without a final
// semicolon is included. Comment text is skipped; the newline ending a
// line comment is kept so statement structure around comments survives.
func Split(script string) []string {
	var stmts []string
	var buf strings.Builder

	state := stateNormal
	var quoteChar byte

	flush := func() {
		stmt := strings.TrimSpace(buf.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		buf.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]

		switch state {
		case stateNormal:
			switch {
			case c == '\'' || c == '"':
				state = stateString
				quoteChar = c
				buf.WriteByte(c)
			case c == '-' && i+1 < len(script) && script[i+1] == '-':
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(script) && script[i+1] == '*':
				state = stateBlockComment
				i++
			case c == ';':
				flush()
			default:
				buf.WriteByte(c)
			}

		case stateString:
			switch {
			case c == '\\' && i+1 < len(script):
				// Escaped character: keep both bytes and do not let an
				// escaped quote close the literal.
				buf.WriteByte(c)
				buf.WriteByte(script[i+1])
				i++
			case c == quoteChar:
				state = stateNormal
				buf.WriteByte(c)
			default:
				buf.WriteByte(c)
			}

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				buf.WriteByte(c)
			}

		case stateBlockComment:
			// Nested block comments are not supported: the first */
			// closes the comment, matching standard SQL semantics.
			if c == '*' && i+1 < len(script) && script[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}

	flush()
	return stmts
}
