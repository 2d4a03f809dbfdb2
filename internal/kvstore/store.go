package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gonum.org/v1/gonum/spatial/r3"
)

// Entry is one key and its encoded value.
type Entry struct {
	Key   string
	Value string
}

// Store writes batches of entries. Implementations should send a batch in a
// single round-trip where the backend allows it.
type Store interface {
	WriteAll(ctx context.Context, entries []Entry) error
	Close() error
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds the initial connection check. Zero uses 5s.
	DialTimeout time.Duration
}

// RedisStore is a Store backed by a redis server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	log.Printf("[KV] connected to redis at %s (db %d)", opts.Addr, opts.DB)
	return &RedisStore{client: client}, nil
}

// WriteAll sets every entry in one pipelined round-trip. Keys do not expire.
func (s *RedisStore) WriteAll(ctx context.Context, entries []Entry) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %d keys: %w", len(entries), err)
	}
	return nil
}

// Get reads one key. It is used by diagnostics and tests.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

// Close closes the redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// EncodeVector encodes a position as a JSON array "[x,y,z]".
func EncodeVector(v r3.Vec) string {
	b, _ := json.Marshal([3]float64{v.X, v.Y, v.Z})
	return string(b)
}

// EncodeMatrix encodes a rotation as nested JSON rows
// "[[r00,r01,r02],[r10,r11,r12],[r20,r21,r22]]".
func EncodeMatrix(m Mat3) string {
	b, _ := json.Marshal(m.Rows())
	return string(b)
}

// DecodeVector parses a value written by EncodeVector.
func DecodeVector(s string) (r3.Vec, error) {
	var a [3]float64
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return r3.Vec{}, fmt.Errorf("failed to decode vector %q: %w", s, err)
	}
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}, nil
}

// DecodeMatrix parses a value written by EncodeMatrix.
func DecodeMatrix(s string) (Mat3, error) {
	var rows [3][3]float64
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return Mat3{}, fmt.Errorf("failed to decode matrix %q: %w", s, err)
	}
	var m Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i*3+j] = rows[i][j]
		}
	}
	return m, nil
}
