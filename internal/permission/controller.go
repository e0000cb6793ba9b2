package permission

// Outcome reports the result of a requested mode switch.
type Outcome struct {
	// Mode is the mode in effect after the decision.
	Mode Mode
	// Switched is true when the session mode changed.
	Switched bool
	// Blocked is true when the request named bypassPermissions while the
	// gating flag disallows it; the current mode is left untouched.
	Blocked bool
}

// Decide applies the gating rule for a requested mode switch. current is the
// session's mode going in; the caller mutates the session only when the
// outcome says Switched.
func Decide(current, requested Mode, bypassAllowed bool) Outcome {
	if requested == ModeBypass && !bypassAllowed {
		return Outcome{Mode: current, Blocked: true}
	}
	if requested == current {
		return Outcome{Mode: current}
	}
	return Outcome{Mode: requested, Switched: true}
}
