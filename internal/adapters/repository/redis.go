package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
)

// RedisStore keeps decisions as JSON values in one Redis hash keyed by
// session id, so several monitor instances can share them.
type RedisStore struct {
	rdb     *redis.Client
	hashKey string
	closed  atomic.Bool
	log     logger.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, ropts *redis.Options, opts ...Option) (*RedisStore, error) {
	o := newOptions("decision-store", opts)
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", ropts.Addr, err)
	}
	o.log.Info(ctx, "decision store opened",
		logger.String("backend", "redis"),
		logger.String("addr", ropts.Addr),
		logger.String("key", o.hashKey))
	return &RedisStore{rdb: rdb, hashKey: o.hashKey, log: o.log}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec model.DecisionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.hashKey, rec.SessionID, data).Err(); err != nil {
		return fmt.Errorf("hset decision %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (model.DecisionRecord, error) {
	if s.closed.Load() {
		return model.DecisionRecord{}, ErrStoreClosed
	}
	data, err := s.rdb.HGet(ctx, s.hashKey, sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DecisionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("hget decision %s: %w", sessionID, err)
	}
	return decodeRecord(sessionID, data)
}

func (s *RedisStore) All(ctx context.Context) ([]model.DecisionRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	all, err := s.rdb.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall decisions: %w", err)
	}
	out := make([]model.DecisionRecord, 0, len(all))
	for id, raw := range all {
		rec, err := decodeRecord(id, []byte(raw))
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable decision", logger.String("session_id", id), logger.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}

func decodeRecord(sessionID string, data []byte) (model.DecisionRecord, error) {
	var rec model.DecisionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	rec.SessionID = sessionID
	return rec, nil
}
