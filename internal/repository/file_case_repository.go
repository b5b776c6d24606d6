package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

var _ CaseRepository = (*FileCaseRepository)(nil)

// FileCaseRepository keeps one <caseID>.json document per case in a
// directory. Writes go through a temp file and rename so readers never see
// a partial document.
type FileCaseRepository struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileCaseRepository creates dir if needed.
func NewFileCaseRepository(dir string) (*FileCaseRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("case store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create case store directory: %w", err)
	}
	return &FileCaseRepository{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *FileCaseRepository) path(caseID string) string {
	return filepath.Join(r.dir, caseID+".json")
}

// Get reads one case document.
func (r *FileCaseRepository) Get(ctx context.Context, caseID string) (*domain.CaseState, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.read(caseID)
}

// Save writes the case document.
func (r *FileCaseRepository) Save(ctx context.Context, c *domain.CaseState) error {
	if err := validateCase(c); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = r.now()
	return r.write(c)
}

// Update applies fn under the repository lock.
func (r *FileCaseRepository) Update(ctx context.Context, caseID string, fn func(*domain.CaseState) error) error {
	if err := ValidateCaseID(caseID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.read(caseID)
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
	return r.write(c)
}

func (r *FileCaseRepository) read(caseID string) (*domain.CaseState, error) {
	data, err := os.ReadFile(r.path(caseID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewNotFoundError("case", caseID)
		}
		return nil, fmt.Errorf("read case %s: %w", caseID, err)
	}

	var c domain.CaseState
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode case %s: %w", caseID, err)
	}
	if c.CaseID == "" {
		c.CaseID = caseID
	}
	return &c, nil
}

func (r *FileCaseRepository) write(c *domain.CaseState) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode case %s: %w", c.CaseID, err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+c.CaseID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write case %s: %w", c.CaseID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write case %s: %w", c.CaseID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write case %s: %w", c.CaseID, err)
	}
	if err := os.Rename(tmp.Name(), r.path(c.CaseID)); err != nil {
		return fmt.Errorf("write case %s: %w", c.CaseID, err)
	}
	return nil
}
