// Package env reads typed settings from environment variables. An unset or
// empty variable always yields the default.
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Int parses the variable as a base-10 integer.
func Int(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

// Seconds parses the variable as a whole number of seconds. Negative values
// are returned as is.
func Seconds(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer number of seconds, got %q", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}

// Bool reports whether the variable is set to a true value as understood by
// strconv.ParseBool. Unparsable values are false.
func Bool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
