package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	BackendRedis   = "redis"
	BackendUpstash = "upstash"
	BackendMemory  = "memory"
)

type Config struct {
	Backend   string        `envconfig:"BACKEND" split_words:"true" default:"redis"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"72h"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"semilla:"`
}

// Open builds the backend selected by cfg.Backend. The returned close
// function is never nil.
func Open(ctx context.Context, cfg Config, redisCfg RedisConfig, upstashCfg UpstashRedisConfig) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRedis, "":
		client, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, noop, err
		}
		backend, err := NewRedisBackend(client, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return backend, client.Close, nil
	case BackendUpstash:
		backend, err := NewUpstashBackend(upstashCfg, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
		if err != nil {
			return nil, noop, err
		}
		return backend, noop, nil
	case BackendMemory:
		log.Warn().Msg("using in-memory state backend; conversations are lost on restart")
		return NewMemoryBackend(cfg.TTL), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
