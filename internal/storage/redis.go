package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"parkpin/internal/notify"
	logx "parkpin/pkg/logx"
)

const defaultRedisKey = "parkpin:notifications"

// redisStore keeps all records in a single hash: field = record id,
// value = JSON-encoded record.
type redisStore struct {
	rdb *redis.Client
	key string
	log logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	key := strings.TrimSpace(cfg.Redis.Key)
	if key == "" {
		key = defaultRedisKey
	}
	return &redisStore{rdb: rdb, key: key, log: log}, nil
}

func (s *redisStore) Put(ctx context.Context, rec notify.Record) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key, rec.ID, string(b)).Err()
}

func (s *redisStore) GetAll(ctx context.Context) ([]notify.Record, error) {
	m, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]notify.Record, 0, len(m))
	for id, raw := range m {
		var rec notify.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn("skipping undecodable notification field", logx.String("id", id), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.HDel(ctx, s.key, id).Err()
}

func (s *redisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
