package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// txBeginner is implemented by pools, not by transactions. Update uses it to
// wrap SELECT FOR UPDATE and the write in one transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const caseColumns = `case_id, video_path, processed_video_path, processing_summary,
	processing_error, step, workflow_id, updated_at`

var _ CaseRepository = (*PgCaseRepository)(nil)

// PgCaseRepository is a PostgreSQL implementation of CaseRepository.
type PgCaseRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgCaseRepository creates a new PostgreSQL case repository.
func NewPgCaseRepository(db DBTX) *PgCaseRepository {
	return &PgCaseRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns one case.
func (r *PgCaseRepository) Get(ctx context.Context, caseID string) (*domain.CaseState, error) {
	row := r.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM case_states WHERE case_id = $1`, caseID)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("case", caseID)
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// Save upserts the case.
func (r *PgCaseRepository) Save(ctx context.Context, c *domain.CaseState) error {
	if err := validateCase(c); err != nil {
		return err
	}
	c.UpdatedAt = r.now()
	return r.upsert(ctx, r.db, c)
}

// Update locks the row, applies fn and writes it back in one transaction.
func (r *PgCaseRepository) Update(ctx context.Context, caseID string, fn func(*domain.CaseState) error) error {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		// Already inside a transaction.
		return r.updateInTx(ctx, r.db, caseID, fn)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.updateInTx(ctx, tx, caseID, fn); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit case update: %w", err)
	}
	return nil
}

func (r *PgCaseRepository) updateInTx(ctx context.Context, db DBTX, caseID string, fn func(*domain.CaseState) error) error {
	row := db.QueryRow(ctx, `SELECT `+caseColumns+` FROM case_states WHERE case_id = $1 FOR UPDATE`, caseID)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("case", caseID)
		}
		return fmt.Errorf("failed to lock case: %w", err)
	}

	if err := fn(c); err != nil {
		return err
	}
	c.CaseID = caseID
	if err := validateCase(c); err != nil {
		return err
	}
	c.UpdatedAt = r.now()
	return r.upsert(ctx, db, c)
}

func (r *PgCaseRepository) upsert(ctx context.Context, db DBTX, c *domain.CaseState) error {
	var summary []byte
	if c.ProcessingSummary != nil {
		var err error
		if summary, err = json.Marshal(c.ProcessingSummary); err != nil {
			return fmt.Errorf("failed to marshal processing summary: %w", err)
		}
	}

	query := `
		INSERT INTO case_states (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (case_id) DO UPDATE SET
			video_path = EXCLUDED.video_path,
			processed_video_path = EXCLUDED.processed_video_path,
			processing_summary = EXCLUDED.processing_summary,
			processing_error = EXCLUDED.processing_error,
			step = EXCLUDED.step,
			workflow_id = EXCLUDED.workflow_id,
			updated_at = EXCLUDED.updated_at`

	_, err := db.Exec(ctx, query,
		c.CaseID, c.VideoPath, nullString(c.ProcessedVideoPath), summary,
		nullString(c.ProcessingError), string(c.Step), nullString(c.WorkflowID), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save case: %w", err)
	}
	return nil
}

func scanCase(row pgx.Row) (*domain.CaseState, error) {
	var (
		c                              domain.CaseState
		processed, procErr, workflowID *string
		summary                        []byte
		step                           string
	)
	if err := row.Scan(&c.CaseID, &c.VideoPath, &processed, &summary, &procErr, &step, &workflowID, &c.UpdatedAt); err != nil {
		return nil, err
	}

	c.Step = domain.CaseStep(step)
	c.ProcessedVideoPath = derefString(processed)
	c.ProcessingError = derefString(procErr)
	c.WorkflowID = derefString(workflowID)

	if len(summary) > 0 && string(summary) != "null" {
		s := domain.NewSummary()
		if err := json.Unmarshal(summary, s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processing summary: %w", err)
		}
		c.ProcessingSummary = s
	}
	return &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
