// Package truncate caps text to a byte budget without splitting UTF-8
// sequences. Tool output and error payloads run through it before rendering.
package truncate

import "unicode/utf8"

// NoteFunc renders the human-readable suffix describing how many bytes were
// removed. Callers supply a localized implementation.
type NoteFunc func(omittedBytes int) string

// Cap returns text unchanged when it fits within maxBytes. Otherwise it
// returns the longest rune-boundary-safe prefix that, together with the
// rendered note, still fits the budget. Pure and idempotent: capping an
// already-capped string is a no-op.
func Cap(text string, maxBytes int, note NoteFunc) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	if note == nil {
		note = func(int) string { return "" }
	}

	// Size the note for the worst-case omitted count first; the recomputed
	// note can only shrink, so the total never exceeds the budget.
	suffix := note(len(text))
	budget := maxBytes - len(suffix)
	if budget < 0 {
		budget = 0
	}
	prefix := boundarySafe(text, budget)
	suffix = note(len(text) - len(prefix))

	out := prefix + suffix
	if len(out) > maxBytes {
		out = boundarySafe(out, maxBytes)
	}
	return out
}

// boundarySafe cuts s to at most max bytes, backing up to the start of the
// rune straddling the cut point.
func boundarySafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
