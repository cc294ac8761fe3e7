// Package internal holds the relay's process-level configuration.
package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,default=/tmp/community-hub/badger"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=/tmp/community-hub/bluge"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	// AuthSecret signs session tokens. No default on purpose.
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	// BufferSize is the index feed capacity, ConnectionBufferSize the
	// per-session outbound capacity.
	BufferSize           int `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,default=64"`

	LimitMessages int `env:"LIMIT_MESSAGES,default=50"`

	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=5s"`

	DebugPort int `env:"DEBUG_PORT,default=8081"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
