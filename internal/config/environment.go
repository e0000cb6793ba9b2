package config

import (
	"os"
	"strings"
)

// EnvLookup resolves an environment variable, mirroring os.LookupEnv. Tests
// inject map-backed lookups so loading never touches the real process env.
type EnvLookup func(key string) (string, bool)

// SnapshotProcessEnv returns a copy of the current process environment.
// The resulting map is safe for modification by callers.
func SnapshotProcessEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

// MapEnvLookup returns an EnvLookup backed by the supplied map.
func MapEnvLookup(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

// ProcessEnvLookup returns an EnvLookup over the live process environment.
func ProcessEnvLookup() EnvLookup {
	return os.LookupEnv
}
