// Package sanitize blanks string literals, character literals and comments
// out of source text while keeping every byte offset and line break intact.
//
// Structural regular expressions run against the sanitized text; the offsets
// they report are then used to slice the original text, so both must stay
// position-aligned byte for byte.
package sanitize

import "strings"

type state int

const (
	stateCode state = iota
	stateString
	stateTextBlock
	stateChar
	stateBlockComment
	stateLineComment
)

// Java returns src with literal contents and comments replaced by spaces.
// Literal delimiters are kept, newlines are kept everywhere. Backslash
// escapes are honoured only to find the closing delimiter.
func Java(src string) string {
	out := []byte(src)
	st := stateCode
	n := len(out)

	for i := 0; i < n; i++ {
		c := src[i]
		switch st {
		case stateCode:
			switch {
			case c == '"' && strings.HasPrefix(src[i:], `"""`):
				st = stateTextBlock
				i += 2
			case c == '"':
				st = stateString
			case c == '\'':
				st = stateChar
			case c == '/' && i+1 < n && src[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				st = stateBlockComment
				i++
			case c == '/' && i+1 < n && src[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				st = stateLineComment
				i++
			}

		case stateString, stateChar:
			delim := byte('"')
			if st == stateChar {
				delim = '\''
			}
			switch {
			case c == '\\' && i+1 < n && !isLineBreak(src[i+1]):
				out[i], out[i+1] = ' ', ' '
				i++
			case c == delim:
				st = stateCode
			case isLineBreak(c):
				// Unterminated on this line; stop blanking so one bad quote
				// cannot swallow the rest of the file.
				st = stateCode
			default:
				out[i] = ' '
			}

		case stateTextBlock:
			switch {
			case c == '\\' && i+1 < n && !isLineBreak(src[i+1]):
				out[i], out[i+1] = ' ', ' '
				i++
			case c == '"' && strings.HasPrefix(src[i:], `"""`):
				st = stateCode
				i += 2
			case isLineBreak(c):
			default:
				out[i] = ' '
			}

		case stateBlockComment:
			switch {
			case c == '*' && i+1 < n && src[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				st = stateCode
				i++
			case isLineBreak(c):
			default:
				out[i] = ' '
			}

		case stateLineComment:
			if isLineBreak(c) {
				st = stateCode
			} else {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

// LineComment strips a trailing // comment from a single line. It does not
// look at quotes, so a "//" inside a string literal also cuts the line.
func LineComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

func isLineBreak(c byte) bool {
	return c == '\n' || c == '\r'
}
