package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store[S].
//
// Each run is a hash keyed by step number holding the JSON step record. A
// sorted set indexes runs by the time their first step was saved.
//
// Keys (default prefix "ragflow:run:"):
//
//	ragflow:run:<runID>   hash   step -> {"step":1,"node":"router","state":{...}}
//	ragflow:run_index     zset   runID scored by first save time
//
// The index sits outside the run keyspace, so any run ID is safe.
type RedisStore[S any] struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisSettings)

type redisSettings struct {
	prefix string
	ttl    time.Duration
}

// WithKeyPrefix sets the key prefix for run hashes and the run index. A
// trailing ":" is added when missing.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *redisSettings) {
		s.prefix = prefix
	}
}

// WithTTL expires a run's history ttl after its last saved step. Zero keeps
// histories forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *redisSettings) {
		s.ttl = ttl
	}
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore[S any](addr, password string, db int, opts ...RedisOption) *RedisStore[S] {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient[S](client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient[S any](client *backend.Client, opts ...RedisOption) *RedisStore[S] {
	settings := redisSettings{prefix: "ragflow:run:"}
	for _, opt := range opts {
		opt(&settings)
	}
	if !strings.HasSuffix(settings.prefix, ":") {
		settings.prefix += ":"
	}
	return &RedisStore[S]{
		client: client,
		prefix: settings.prefix,
		ttl:    settings.ttl,
	}
}

func (r *RedisStore[S]) key(runID string) string {
	return r.prefix + runID
}

func (r *RedisStore[S]) indexKey() string {
	return strings.TrimSuffix(r.prefix, ":") + "_index"
}

// SaveStep implements Store.
func (r *RedisStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(StepRecord[S]{Step: step, NodeID: nodeID, State: state})
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(runID), strconv.Itoa(step), data)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(runID), r.ttl)
	}
	pipe.ZAddNX(ctx, r.indexKey(), backend.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: runID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save step to redis: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	records, err := r.LoadSteps(ctx, runID)
	if err != nil {
		var zero S
		return zero, 0, err
	}
	latest := records[len(records)-1]
	return latest.State, latest.Step, nil
}

// LoadSteps implements Store.
func (r *RedisStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	fields, err := r.client.HGetAll(ctx, r.key(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load steps from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	records := make([]StepRecord[S], 0, len(fields))
	for field, value := range fields {
		var record StepRecord[S]
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %s: %w", field, err)
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}

// ListRuns implements Store. Index entries whose history has expired are
// pruned as a side effect.
func (r *RedisStore[S]) ListRuns(ctx context.Context) ([]string, error) {
	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.client.Exists(ctx, r.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check run %s: %w", id, err)
		}
		if n == 0 {
			if err := r.client.ZRem(ctx, r.indexKey(), id).Err(); err != nil && !errors.Is(err, backend.Nil) {
				return nil, fmt.Errorf("failed to prune run %s: %w", id, err)
			}
			continue
		}
		runs = append(runs, id)
	}
	return runs, nil
}

// Ping verifies the server is reachable.
func (r *RedisStore[S]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore[S]) Close() error {
	return r.client.Close()
}
