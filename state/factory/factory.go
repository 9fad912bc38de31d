// Package factory constructs the configured conversation store backend.
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/alvbln/alvin-bot-sub000/state"
	"github.com/alvbln/alvin-bot-sub000/state/hybrid"
	"github.com/alvbln/alvin-bot-sub000/state/memory"
	redisstore "github.com/alvbln/alvin-bot-sub000/state/redis"
	sqlitestore "github.com/alvbln/alvin-bot-sub000/state/sqlite"
)

// Settings selects and parameterizes the state backend. Zero values fall
// back to sensible defaults.
type Settings struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

const defaultSQLitePath = "./.alvinbot/state.db"

func New(settings Settings) (state.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(settings.Backend))
	switch backend {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		return sqlitestore.New(sqlitePath(settings))

	case "redis":
		return newRedis(settings)

	case "hybrid":
		durable, err := sqlitestore.New(sqlitePath(settings))
		if err != nil {
			return nil, err
		}
		cache, err := newRedis(settings)
		if err != nil {
			// Redis being down at startup is not fatal in hybrid mode.
			return hybrid.New(durable, nil)
		}
		return hybrid.New(durable, cache)

	default:
		return nil, fmt.Errorf("unsupported state backend %q (use memory, sqlite, redis, or hybrid)", backend)
	}
}

func sqlitePath(settings Settings) string {
	if strings.TrimSpace(settings.SQLitePath) != "" {
		return settings.SQLitePath
	}
	return defaultSQLitePath
}

func newRedis(settings Settings) (state.Store, error) {
	addr := settings.RedisAddr
	if strings.TrimSpace(addr) == "" {
		addr = "127.0.0.1:6379"
	}
	opts := []redisstore.Option{
		redisstore.WithPassword(settings.RedisPassword),
		redisstore.WithDB(settings.RedisDB),
		redisstore.WithTTL(settings.RedisTTL),
	}
	return redisstore.New(addr, opts...)
}
