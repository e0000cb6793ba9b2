package config

import (
	"strconv"
	"strings"
	"time"
)

// Settings holds every tunable of the bridge process. All values come from
// the environment; absent or malformed values fall back to defaults and
// numeric values are clamped to their documented ranges.
type Settings struct {
	// Debug enables debug-level logging on the stderr sink.
	Debug bool
	// DefaultPermissionMode is the raw mode name applied to new sessions.
	DefaultPermissionMode string
	// InterceptConsole keeps all logging off stdout so protocol frames
	// stay uncorrupted.
	InterceptConsole bool
	// QueryTimeout bounds a single upstream query.
	QueryTimeout time.Duration
	// ShowThinking controls the banner emitted at the start of a prompt.
	ShowThinking bool
	// Locale selects the user-facing message catalog.
	Locale string
	// AllowBypass gates the bypassPermissions mode.
	AllowBypass bool
	// FlushWindow is how long outgoing text coalesces before a flush.
	FlushWindow time.Duration
	// FlushThresholdBytes forces an immediate flush once a session's
	// pending buffer reaches this size.
	FlushThresholdBytes int
	// MaxOutputBytes caps rendered tool output and error payloads.
	MaxOutputBytes int
	// IdleTTL is how long a session may sit idle before the reaper
	// removes it.
	IdleTTL time.Duration
	// ClaudeBin is the upstream CLI binary.
	ClaudeBin string
	// WorkDir is the working directory for upstream queries; empty means
	// the process working directory.
	WorkDir string
}

const (
	envDebug            = "ZED_CLAUDE_DEBUG"
	envDefaultMode      = "ZED_CLAUDE_DEFAULT_MODE"
	envInterceptConsole = "ZED_CLAUDE_INTERCEPT_CONSOLE"
	envQueryTimeoutMS   = "ZED_CLAUDE_QUERY_TIMEOUT_MS"
	envShowThinking     = "ZED_CLAUDE_SHOW_THINKING"
	envLocale           = "ZED_CLAUDE_LOCALE"
	envAllowBypass      = "ZED_CLAUDE_ALLOW_BYPASS"
	envFlushWindowMS    = "ZED_CLAUDE_FLUSH_WINDOW_MS"
	envFlushThreshold   = "ZED_CLAUDE_FLUSH_THRESHOLD_BYTES"
	envMaxOutputBytes   = "ZED_CLAUDE_MAX_OUTPUT_BYTES"
	envIdleTTLMS        = "ZED_CLAUDE_IDLE_TTL_MS"
	envClaudeBin        = "ZED_CLAUDE_BIN"
	envWorkDir          = "ZED_CLAUDE_WORKDIR"
)

// Load resolves Settings from the supplied lookup. A nil lookup reads the
// live process environment.
func Load(lookup EnvLookup) Settings {
	if lookup == nil {
		lookup = ProcessEnvLookup()
	}
	return Settings{
		Debug:                 boolValue(lookup, envDebug, false),
		DefaultPermissionMode: stringValue(lookup, envDefaultMode, "default"),
		InterceptConsole:      boolValue(lookup, envInterceptConsole, true),
		QueryTimeout:          millisValue(lookup, envQueryTimeoutMS, 60000, 1000, 600000),
		ShowThinking:          boolValue(lookup, envShowThinking, true),
		Locale:                stringValue(lookup, envLocale, "ko"),
		AllowBypass:           boolValue(lookup, envAllowBypass, true),
		FlushWindow:           millisValue(lookup, envFlushWindowMS, 60, 0, 1000),
		FlushThresholdBytes:   intValue(lookup, envFlushThreshold, 4096, 256, 1<<20),
		MaxOutputBytes:        intValue(lookup, envMaxOutputBytes, 16384, 1024, 524288),
		IdleTTL:               millisValue(lookup, envIdleTTLMS, 1800000, 60000, 86400000),
		ClaudeBin:             stringValue(lookup, envClaudeBin, "claude"),
		WorkDir:               stringValue(lookup, envWorkDir, ""),
	}
}

func stringValue(lookup EnvLookup, key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func boolValue(lookup EnvLookup, key string, fallback bool) bool {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func intValue(lookup EnvLookup, key string, fallback, min, max int) int {
	result := fallback
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			result = parsed
		}
	}
	if result < min {
		result = min
	}
	if result > max {
		result = max
	}
	return result
}

func millisValue(lookup EnvLookup, key string, fallback, min, max int) time.Duration {
	return time.Duration(intValue(lookup, key, fallback, min, max)) * time.Millisecond
}
