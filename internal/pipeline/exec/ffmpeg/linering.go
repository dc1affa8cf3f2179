// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"bytes"
	"sync"
)

// maxPartial bounds an unterminated line kept between writes.
const maxPartial = 4096

// LineRing is a thread-safe ring of the last N lines written to it.
// Lines split across writes are joined before being stored.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial []byte
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		r.partial = append(r.partial, data[:i]...)
		r.push(string(bytes.TrimRight(r.partial, "\r")))
		r.partial = r.partial[:0]
		data = data[i+1:]
	}
	r.partial = append(r.partial, data...)
	if len(r.partial) > maxPartial {
		r.push(string(r.partial))
		r.partial = r.partial[:0]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns up to n most recent lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	out := make([]string, 0, n)
	start := (r.head - n + len(r.lines)) % len(r.lines)
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
