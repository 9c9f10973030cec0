package daemon

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// outputDecoder turns raw process output into UTF-8 text. A multi-byte
// sequence split across reads is held back until its remaining bytes
// arrive. Chunks that are not valid UTF-8 are read as ISO-8859-1.
type outputDecoder struct {
	carry []byte
}

// Decode converts p, possibly keeping its incomplete tail for the next call.
func (d *outputDecoder) Decode(p []byte) string {
	buf := append(d.carry, p...)
	cut := len(buf) - incompleteTail(buf)
	d.carry = append([]byte(nil), buf[cut:]...)
	return toUTF8(buf[:cut])
}

// Flush converts whatever is held back.
func (d *outputDecoder) Flush() string {
	rest := d.carry
	d.carry = nil
	return toUTF8(rest)
}

// incompleteTail returns the length of a truncated UTF-8 sequence at the end
// of b.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return len(b) - i
		}
		return 0
	}
	return 0
}

func toUTF8(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
