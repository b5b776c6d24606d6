// Package repository stores the case-state documents that drive the HTTP
// processing trigger.
//
// Three backends implement CaseRepository:
//
//   - FileCaseRepository: one JSON file per case under a directory
//   - PgCaseRepository: the case_states table (see migrations/)
//   - RedisCaseRepository: one JSON string per case under a key prefix
//
// All backends return domain.ErrNotFound for unknown cases and serialize
// concurrent Update calls on the same case, so a background job writing its
// result cannot lose a concurrent change.
package repository

import (
	"context"
	"fmt"
	"regexp"

	"github.com/helixir/vehicle-tracking-service/internal/config"
	"github.com/helixir/vehicle-tracking-service/internal/database"
	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// CaseRepository persists case-state documents.
type CaseRepository interface {
	// Get returns the case, or an error matching domain.ErrNotFound.
	Get(ctx context.Context, caseID string) (*domain.CaseState, error)

	// Save creates or replaces the case.
	Save(ctx context.Context, c *domain.CaseState) error

	// Update loads the case, applies fn and stores the result atomically.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, caseID string, fn func(*domain.CaseState) error) error
}

var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateCaseID rejects IDs that are empty, too long or could escape a key
// namespace or directory.
func ValidateCaseID(caseID string) error {
	if !caseIDPattern.MatchString(caseID) {
		return domain.NewValidationError("case_id", "must match "+caseIDPattern.String())
	}
	return nil
}

func validateCase(c *domain.CaseState) error {
	if c == nil {
		return domain.NewValidationError("case", "case cannot be nil")
	}
	if err := ValidateCaseID(c.CaseID); err != nil {
		return err
	}
	if c.VideoPath == "" {
		return domain.NewValidationError("video_path", "is required")
	}
	if c.Step == "" {
		return domain.NewValidationError("step", "is required")
	}
	return nil
}

// Backend selects a CaseRepository implementation.
type Backend struct {
	DB    DBTX
	Redis RedisClient
}

// NewCaseRepository builds the repository named by cfg.Backend.
func NewCaseRepository(cfg config.CaseStoreConfig, b Backend) (CaseRepository, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileCaseRepository(cfg.Dir)
	case config.BackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("postgres case store requires a database")
		}
		return NewPgCaseRepository(b.DB), nil
	case config.BackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis case store requires a redis client")
		}
		return NewRedisCaseRepository(b.Redis, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown case store backend %q", cfg.Backend)
	}
}
