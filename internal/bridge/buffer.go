package bridge

import (
	"strings"
	"sync"
	"time"
)

// FlushFunc receives the coalesced text for one session.
type FlushFunc func(sessionID, text string)

// TextBufferer coalesces rapid bursts of outgoing text per session into a
// single update. Upstream emits many small token deltas; sending each one as
// its own protocol round-trip is wasteful and visually jittery on the editor.
type TextBufferer struct {
	window    time.Duration
	threshold int
	flush     FlushFunc

	mu      sync.Mutex
	buffers map[string]*textBuffer
}

type textBuffer struct {
	data  strings.Builder
	timer *time.Timer
}

// NewTextBufferer creates a bufferer. A zero window flushes synchronously on
// every append; threshold forces an immediate flush once the pending buffer
// reaches that many bytes (0 disables the threshold).
func NewTextBufferer(window time.Duration, threshold int, flush FlushFunc) *TextBufferer {
	return &TextBufferer{
		window:    window,
		threshold: threshold,
		flush:     flush,
		buffers:   make(map[string]*textBuffer),
	}
}

// Append accumulates text for the session and arms the flush timer if one is
// not already pending. Append order is preserved within a window.
func (b *TextBufferer) Append(sessionID, text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	buf, ok := b.buffers[sessionID]
	if !ok {
		buf = &textBuffer{}
		b.buffers[sessionID] = buf
	}
	buf.data.WriteString(text)

	if b.window <= 0 || (b.threshold > 0 && buf.data.Len() >= b.threshold) {
		pending := b.takeLocked(sessionID, buf)
		b.mu.Unlock()
		b.flush(sessionID, pending)
		return
	}
	if buf.timer == nil {
		buf.timer = time.AfterFunc(b.window, func() {
			b.Flush(sessionID)
		})
	}
	b.mu.Unlock()
}

// Flush emits the pending buffer as one update; no-op when empty.
func (b *TextBufferer) Flush(sessionID string) {
	b.mu.Lock()
	buf, ok := b.buffers[sessionID]
	if !ok || buf.data.Len() == 0 {
		if ok {
			b.takeLocked(sessionID, buf)
		}
		b.mu.Unlock()
		return
	}
	pending := b.takeLocked(sessionID, buf)
	b.mu.Unlock()
	b.flush(sessionID, pending)
}

// Drop discards any pending buffer without emitting it.
func (b *TextBufferer) Drop(sessionID string) {
	b.mu.Lock()
	if buf, ok := b.buffers[sessionID]; ok {
		b.takeLocked(sessionID, buf)
	}
	b.mu.Unlock()
}

// takeLocked stops the timer, removes the entry, and returns its content.
func (b *TextBufferer) takeLocked(sessionID string, buf *textBuffer) string {
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	delete(b.buffers, sessionID)
	return buf.data.String()
}
