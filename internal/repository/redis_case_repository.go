package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// RedisClient is satisfied by *redis.Client and *redis.ClusterClient.
type RedisClient = redis.UniversalClient

// DefaultKeyPrefix namespaces case keys.
const DefaultKeyPrefix = "vtrack:case:"

// maxUpdateAttempts bounds optimistic retries when a watched key changes
// between read and EXEC.
const maxUpdateAttempts = 20

var _ CaseRepository = (*RedisCaseRepository)(nil)

// RedisCaseRepository stores each case as a JSON string under prefix+caseID.
// Update uses WATCH/MULTI so concurrent writers retry instead of
// overwriting each other.
type RedisCaseRepository struct {
	rdb    RedisClient
	prefix string
	now    func() time.Time
}

// NewRedisCaseRepository creates a repository using rdb.
func NewRedisCaseRepository(rdb RedisClient, prefix string) *RedisCaseRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCaseRepository{rdb: rdb, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (r *RedisCaseRepository) key(caseID string) string { return r.prefix + caseID }

// Get returns one case.
func (r *RedisCaseRepository) Get(ctx context.Context, caseID string) (*domain.CaseState, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	data, err := r.rdb.Get(ctx, r.key(caseID)).Bytes()
	return decodeCase(caseID, data, err)
}

// Save writes the case.
func (r *RedisCaseRepository) Save(ctx context.Context, c *domain.CaseState) error {
	if err := validateCase(c); err != nil {
		return err
	}
	c.UpdatedAt = r.now()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode case %s: %w", c.CaseID, err)
	}
	if err := r.rdb.Set(ctx, r.key(c.CaseID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET case: %w", err)
	}
	return nil
}

// Update applies fn inside a WATCH transaction, retrying on conflicts.
func (r *RedisCaseRepository) Update(ctx context.Context, caseID string, fn func(*domain.CaseState) error) error {
	if err := ValidateCaseID(caseID); err != nil {
		return err
	}
	key := r.key(caseID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		c, err := decodeCase(caseID, data, err)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.CaseID = caseID
		if err := validateCase(c); err != nil {
			return err
		}
		c.UpdatedAt = r.now()
		encoded, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode case %s: %w", caseID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update case %s: gave up after %d conflicting writes", caseID, maxUpdateAttempts)
}

func decodeCase(caseID string, data []byte, err error) (*domain.CaseState, error) {
	if errors.Is(err, redis.Nil) {
		return nil, domain.NewNotFoundError("case", caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET case: %w", err)
	}
	var c domain.CaseState
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode case %s: %w", caseID, err)
	}
	return &c, nil
}
