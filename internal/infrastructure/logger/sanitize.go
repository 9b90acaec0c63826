package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxUntrustedLen caps how many runes of a client supplied value reach the log.
const maxUntrustedLen = 256

// Untrusted returns a string field for a value that came from a client,
// such as an upload filename or a converter error. Control characters are
// escaped so a value cannot forge log lines, and long values are cut.
func Untrusted(key, value string) zap.Field {
	return zap.String(key, Escape(value))
}

// Escape rewrites control characters as visible escapes and truncates the
// result to maxUntrustedLen runes. Printable Unicode is kept as is.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n == maxUntrustedLen {
			b.WriteString("...")
			break
		}
		n++
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case utf8.RuneError:
			b.WriteString(`�`)
		default:
			if r < 32 || r == 127 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
