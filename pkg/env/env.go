// Package env reads process environment variables with fallbacks.
package env

import "os"

// Get returns the named variable's value, or fallback when it is unset
// or empty.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
