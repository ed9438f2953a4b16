// Package env reads the few process settings that live outside config.Config,
// such as the instance name and log format, which are needed before config loads.
package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, trimmed, or fallback.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
