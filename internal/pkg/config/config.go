// Package config exposes typed configuration lookup behind an interface.
//
// The credential core never reads ambient globals; whoever constructs it
// injects a Config. The production implementation is Viper-backed with file
// watching, tests usually use the in-memory variant.
package config

import (
	"io"
	"time"
)

// Config retrieves configuration values by dotted key. Implementations return
// zero values for missing keys.
type Config interface {
	io.Closer

	// GetString returns the value for key as a string.
	GetString(key string) string

	// GetBool returns the value for key as a bool.
	GetBool(key string) bool

	// GetInt returns the value for key as an int.
	GetInt(key string) int

	// GetInt32 returns the value for key as an int32.
	GetInt32(key string) int32

	// GetInt64 returns the value for key as an int64.
	GetInt64(key string) int64

	// GetUint returns the value for key as a uint.
	GetUint(key string) uint

	// GetFloat64 returns the value for key as a float64.
	GetFloat64(key string) float64

	// GetSecond returns the integer value for key as a duration in seconds.
	GetSecond(key string) time.Duration

	// GetMinute returns the integer value for key as a duration in minutes.
	GetMinute(key string) time.Duration

	// GetBinary returns the base64-decoded value for key, or nil when the
	// value is missing or not valid base64.
	GetBinary(key string) []byte

	// GetArray returns the comma-separated value for key as a string slice.
	GetArray(key string) []string
}
