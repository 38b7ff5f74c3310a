// Package redisstore implements store.Backend against Redis, keyed and
// shaped the way edirooss-zmux-server's internal/redis repositories key
// theirs: a per-record JSON blob plus a SET index of known record IDs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"replistore/internal/record"
)

// ErrRecordNotFound reports that a recordID has no key in Redis.
var ErrRecordNotFound = errors.New("redisstore: record not found")

func recordKey(instance, recordID string) string {
	return fmt.Sprintf("replistore:%s:record:%s", instance, recordID)
}

func indexKey(instance string) string {
	return fmt.Sprintf("replistore:%s:records", instance)
}

// Store is a store.Backend backed by a key-per-record layout: each record
// is a JSON string value at replistore:<instance>:record:<recordID>,
// indexed by a SET at replistore:<instance>:records so Range/Len don't
// need a KEYS scan.
type Store struct {
	client   *redis.Client
	instance string
	ctx      context.Context
	log      *zap.Logger
}

// New connects to the Redis server at addr/db and returns a Backend
// scoped to instance, so multiple nodes can share one Redis server
// without key collisions.
func New(ctx context.Context, addr string, db int, instance string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("redisstore")

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}

	return &Store{client: client, instance: instance, ctx: ctx, log: log}, nil
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get implements store.Backend.
func (s *Store) Get(recordID string) (record.Record, bool, error) {
	val, err := s.client.Get(s.ctx, recordKey(s.instance, recordID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return record.Record{}, false, nil
		}
		return record.Record{}, false, fmt.Errorf("redisstore: get %s: %w", recordID, err)
	}

	var r record.Record
	if err := json.Unmarshal(val, &r); err != nil {
		return record.Record{}, false, fmt.Errorf("redisstore: decode %s: %w", recordID, err)
	}
	return r, true, nil
}

// Put implements store.Backend: writes the record and adds its ID to
// the index set in a single pipelined round trip.
func (s *Store) Put(r record.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", r.RecordID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(s.ctx, recordKey(s.instance, r.RecordID), payload, 0)
	pipe.SAdd(s.ctx, indexKey(s.instance), r.RecordID)
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("redisstore: put %s: %w", r.RecordID, err)
	}
	return nil
}

// Range implements store.Backend by listing the index set and fetching
// every record with a single MGET.
func (s *Store) Range(fn func(record.Record) bool) error {
	ids, err := s.client.SMembers(s.ctx, indexKey(s.instance)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisstore: smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(s.instance, id)
	}

	vals, err := s.client.MGet(s.ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redisstore: mget: %w", err)
	}

	for i, v := range vals {
		if v == nil {
			continue // index drifted ahead of a concurrent delete; harmless
		}
		raw, ok := v.(string)
		if !ok {
			s.log.Warn("unexpected redis value type", zap.String("key", keys[i]))
			continue
		}
		var r record.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return fmt.Errorf("redisstore: decode %s: %w", ids[i], err)
		}
		if !fn(r) {
			return nil
		}
	}
	return nil
}

// Len implements store.Backend.
func (s *Store) Len() (int, error) {
	n, err := s.client.SCard(s.ctx, indexKey(s.instance)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: scard: %w", err)
	}
	return int(n), nil
}
