package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"wellnessgo/internal/config"
	"wellnessgo/internal/redis"
	"wellnessgo/internal/storage"
)

const (
	redisKeyPrefix = "wellness:"
	profileKeyInfo = "health_profile"
)

// stores are the key/value backends for conversations and health profiles.
type stores struct {
	conversations storage.KV
	profiles      storage.KV
	close         func()
}

// openStores connects the configured backend. Profiles are sealed when a profile secret
// is configured.
func openStores(cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	driver := cfg.StorageDriver()
	var (
		kv      storage.KV
		closeFn = func() {}
	)
	switch driver {
	case "sqlite3", "mysql":
		db, err := storage.Open(driver, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := storage.Migrate(db, driver); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		kv = storage.NewSQLKV(db, driver)
		closeFn = func() { db.Close() }
	case "redis":
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		kv = redis.NewKV(rdb, redisKeyPrefix, 0)
		closeFn = func() { rdb.Close() }
	case "memory":
		logger.Warn().Msg("memory storage selected, nothing survives a restart")
		kv = storage.NewMemoryKV()
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}

	profiles := kv
	if secret := cfg.Env.ProfileSecret; secret != "" {
		sealed, err := storage.NewSealedKV(kv, secret, profileKeyInfo)
		if err != nil {
			closeFn()
			return nil, fmt.Errorf("seal profile store: %w", err)
		}
		profiles = sealed
	} else {
		logger.Warn().Msg("WELLNESS_PROFILE_SECRET not set, health profiles are stored unencrypted")
	}
	logger.Info().Str("driver", driver).Msg("storage ready")
	return &stores{conversations: kv, profiles: profiles, close: closeFn}, nil
}
