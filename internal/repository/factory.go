// Package repository provides the initialization for repository implementations
package repository

import (
	"log"

	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/repository/memory"
	"github.com/ThxTiger/roomkiosk/internal/repository/redis"
)

// NewRepository returns a Redis-backed repository when Redis is enabled and
// reachable, falling back to the in-memory implementation otherwise. The
// kiosk keeps working without Redis; it just forgets released events across
// restarts.
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if cfg.Enabled {
		repo, err := redis.NewRepository(cfg)
		if err != nil {
			log.Printf("Redis repository unavailable, using in-memory store: %v", err)
			return memory.NewRepository(), nil
		}
		return repo, nil
	}
	return memory.NewRepository(), nil
}
