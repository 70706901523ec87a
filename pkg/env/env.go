// Package env reads process settings that are needed before pkg/config loads.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces service variables, matching the envconfig prefix.
const Prefix = "RX_"

// Get returns RX_<key>, then <key>, then fallback. Blank values count as unset.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
