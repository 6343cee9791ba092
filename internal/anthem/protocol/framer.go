package protocol

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Framer splits a continuous byte stream into terminator-delimited lines.
// Bytes from successive reads are appended to whatever is left over from
// the previous call, so a line split across reads is yielded once its
// terminator arrives. A Framer is not safe for concurrent use.
type Framer struct {
	terminator byte
	pending    []byte
}

// NewFramer creates a framer for the given terminator.
func NewFramer(terminator byte) *Framer {
	return &Framer{terminator: terminator}
}

// Push appends data and returns every complete, non-empty line in order.
func (f *Framer) Push(data []byte) []string {
	f.pending = append(f.pending, data...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.pending, f.terminator)
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(decodeASCII(f.pending[:idx]))
		f.pending = f.pending[idx+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	// Drop the consumed prefix so the backing array does not grow forever.
	if len(f.pending) == 0 {
		f.pending = nil
	} else if cap(f.pending) > 4096 && len(f.pending) < cap(f.pending)/4 {
		f.pending = append([]byte(nil), f.pending...)
	}
	return lines
}

// Buffered reports how many bytes are waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.pending)
}

// decodeASCII maps non-ASCII bytes to the Unicode replacement character.
func decodeASCII(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c >= utf8.RuneSelf {
			b.WriteRune(utf8.RuneError)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
