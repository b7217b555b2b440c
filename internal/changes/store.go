package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// --------------------------------------------------------------------------
// In-process store
// --------------------------------------------------------------------------

// MemoryStore keeps hashes in a map. Lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	hashes    map[string]string
	baselines map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes:    make(map[string]string),
		baselines: make(map[string][]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, sourceID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[sourceID]
	return h, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, sourceID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[sourceID] = hash
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, sourceID)
	return nil
}

func (m *MemoryStore) GetBaseline(_ context.Context, sourceID string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.baselines[sourceID]
	return append([]string(nil), b...), ok, nil
}

func (m *MemoryStore) SetBaseline(_ context.Context, sourceID string, paragraphs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[sourceID] = append([]string{}, paragraphs...)
	return nil
}

// --------------------------------------------------------------------------
// Redis store
// --------------------------------------------------------------------------

const (
	// RedisHashKey is the Redis hash holding all source hashes.
	RedisHashKey = "prosvitlo:source_hashes"
	// RedisBaselineKey holds page baselines as JSON arrays.
	RedisBaselineKey = "prosvitlo:page_baselines"
)

// RedisStore keeps hashes in a single Redis hash shared by all instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, sourceID string) (string, bool, error) {
	h, err := r.client.HGet(ctx, RedisHashKey, sourceID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return h, true, nil
}

func (r *RedisStore) Set(ctx context.Context, sourceID, hash string) error {
	return r.client.HSet(ctx, RedisHashKey, sourceID, hash).Err()
}

func (r *RedisStore) Delete(ctx context.Context, sourceID string) error {
	return r.client.HDel(ctx, RedisHashKey, sourceID).Err()
}

func (r *RedisStore) GetBaseline(ctx context.Context, sourceID string) ([]string, bool, error) {
	raw, err := r.client.HGet(ctx, RedisBaselineKey, sourceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeBaseline(raw)
}

func (r *RedisStore) SetBaseline(ctx context.Context, sourceID string, paragraphs []string) error {
	raw, err := json.Marshal(paragraphs)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, RedisBaselineKey, sourceID, raw).Err()
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// --------------------------------------------------------------------------
// Postgres store
// --------------------------------------------------------------------------

// PgStore keeps hashes in the source_hashes table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (p *PgStore) Get(ctx context.Context, sourceID string) (string, bool, error) {
	var h string
	err := p.pool.QueryRow(ctx, "source_hash_get", sourceID).Scan(&h)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return h, true, nil
}

func (p *PgStore) Set(ctx context.Context, sourceID, hash string) error {
	_, err := p.pool.Exec(ctx, "source_hash_set", sourceID, hash)
	return err
}

func (p *PgStore) Delete(ctx context.Context, sourceID string) error {
	_, err := p.pool.Exec(ctx, "source_hash_delete", sourceID)
	return err
}

func (p *PgStore) GetBaseline(ctx context.Context, sourceID string) ([]string, bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, "page_baseline_get", sourceID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeBaseline(raw)
}

func (p *PgStore) SetBaseline(ctx context.Context, sourceID string, paragraphs []string) error {
	raw, err := json.Marshal(paragraphs)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, "page_baseline_set", sourceID, raw)
	return err
}

func decodeBaseline(raw []byte) ([]string, bool, error) {
	var paragraphs []string
	if err := json.Unmarshal(raw, &paragraphs); err != nil {
		return nil, false, fmt.Errorf("decode baseline: %w", err)
	}
	return paragraphs, true, nil
}
