// Package config handles application configuration and setup
package config

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"

	"github.com/retroenv/retrogolib/log"
	"github.com/xyproto/env/v2"
)

// EnvDebug is the environment variable that enables debug logging.
const EnvDebug = "SGN_DEBUG"

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug || env.Bool(EnvDebug) {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// NewRandomSource returns a random number generator seeded from the
// operating system entropy source. Keys, register choices and filler
// bytes are drawn from it.
func NewRandomSource() (*rand.Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("reading random seed: %w", err)
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}
