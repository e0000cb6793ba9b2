// Package permission owns the session permission mode: parsing, the in-band
// switch markers, and the gating rule for bypassPermissions.
package permission

import "strings"

// Mode is the policy governing whether side-effecting operations require
// confirmation. The set is closed; the upstream CLI accepts the same names.
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeAcceptEdits Mode = "acceptEdits"
	ModeBypass      Mode = "bypassPermissions"
	ModePlan        Mode = "plan"
)

// AllModes lists every mode in a stable order.
func AllModes() []Mode {
	return []Mode{ModeDefault, ModeAcceptEdits, ModeBypass, ModePlan}
}

// ParseMode validates raw against the closed mode set. Unrecognized or
// absent values resolve to ModeDefault; parsing never fails.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "acceptedits", "accept-edits", "accept_edits":
		return ModeAcceptEdits
	case "bypasspermissions", "bypass-permissions", "bypass_permissions", "bypass":
		return ModeBypass
	case "plan":
		return ModePlan
	default:
		return ModeDefault
	}
}

// In-band markers, matched literally inside prompt text. One per mode.
const (
	MarkerDefault     = "[ACP:DEFAULT]"
	MarkerAcceptEdits = "[ACP:ACCEPT_EDITS]"
	MarkerBypass      = "[ACP:BYPASS_PERMISSIONS]"
	MarkerPlan        = "[ACP:PLAN]"
)

var markerModes = []struct {
	marker string
	mode   Mode
}{
	{MarkerDefault, ModeDefault},
	{MarkerAcceptEdits, ModeAcceptEdits},
	{MarkerBypass, ModeBypass},
	{MarkerPlan, ModePlan},
}

// DetectMarker scans text for the mode-switch markers. When several distinct
// markers are present, the one occurring earliest in the text wins.
func DetectMarker(text string) (Mode, bool) {
	best := -1
	var mode Mode
	for _, entry := range markerModes {
		idx := strings.Index(text, entry.marker)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			mode = entry.mode
		}
	}
	if best < 0 {
		return "", false
	}
	return mode, true
}

// StripMarkers removes every switch marker from text so the upstream engine
// never sees control tokens as conversational content.
func StripMarkers(text string) string {
	for _, entry := range markerModes {
		text = strings.ReplaceAll(text, entry.marker, "")
	}
	return strings.TrimSpace(text)
}
