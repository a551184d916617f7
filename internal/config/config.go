package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"frameworks/lookout/pkg/config"
)

// Speech backends.
const (
	SpeechCommand = "command"
	SpeechRedis   = "redis"
	SpeechNone    = "none"
)

// Config stores environment configuration for lookout.
type Config struct {
	Port             string
	SourceURL        string
	Preload          bool
	SpeechEnabled    bool
	SpeechBackend    string
	SpeechCommand    string
	SpeechChannel    string
	RedisURL         string
	SuppressionSweep time.Duration
}

// LoadConfig loads the lookout configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:             config.GetEnv("PORT", "18040"),
		SourceURL:        config.GetEnv("LOOKOUT_SOURCE_URL", "http://localhost:8000"),
		Preload:          config.GetEnvBool("LOOKOUT_PRELOAD", true),
		SpeechEnabled:    config.GetEnvBool("LOOKOUT_SPEECH_ENABLED", true),
		SpeechBackend:    strings.ToLower(config.GetEnv("LOOKOUT_SPEECH_BACKEND", SpeechCommand)),
		SpeechCommand:    config.GetEnv("LOOKOUT_SPEECH_COMMAND", "espeak-ng"),
		SpeechChannel:    config.GetEnv("LOOKOUT_SPEECH_CHANNEL", "lookout:speech"),
		RedisURL:         config.GetEnv("REDIS_URL", ""),
		SuppressionSweep: config.GetEnvDuration("LOOKOUT_SUPPRESSION_SWEEP", 0),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.SpeechBackend {
	case SpeechCommand:
		if c.SpeechCommand == "" {
			return fmt.Errorf("LOOKOUT_SPEECH_COMMAND is required for the %s backend", SpeechCommand)
		}
	case SpeechRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s backend", SpeechRedis)
		}
	case SpeechNone:
	default:
		return fmt.Errorf("unknown LOOKOUT_SPEECH_BACKEND %q", c.SpeechBackend)
	}
	if c.SuppressionSweep < 0 {
		return errors.New("LOOKOUT_SUPPRESSION_SWEEP must not be negative")
	}
	return nil
}
