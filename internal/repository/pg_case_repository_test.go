package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

var caseRowColumns = []string{
	"case_id", "video_path", "processed_video_path", "processing_summary",
	"processing_error", "step", "workflow_id", "updated_at",
}

func strPtr(s string) *string { return &s }

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newMockRepo(t *testing.T) (*PgCaseRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := NewPgCaseRepository(mock)
	repo.now = fixedNow
	return repo, mock
}

func TestPgCaseRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns case when found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := pgxmock.NewRows(caseRowColumns).AddRow(
			"case-1", "videos/crash.mp4", strPtr("videos/tracked_crash.mp4"),
			[]byte(`{"total_collision_events":2,"model":"yolo11n.pt"}`),
			nil, "video_processed", strPtr("video-tracking-1-abc"), fixedNow(),
		)
		mock.ExpectQuery(`SELECT .* FROM case_states WHERE case_id = \$1`).
			WithArgs("case-1").
			WillReturnRows(rows)

		c, err := repo.Get(ctx, "case-1")
		require.NoError(t, err)
		assert.Equal(t, "case-1", c.CaseID)
		assert.Equal(t, domain.CaseStepVideoProcessed, c.Step)
		assert.Equal(t, "videos/tracked_crash.mp4", c.ProcessedVideoPath)
		assert.Empty(t, c.ProcessingError)
		assert.Equal(t, "video-tracking-1-abc", c.WorkflowID)
		require.NotNil(t, c.ProcessingSummary)
		assert.Equal(t, []string{"total_collision_events", "model"}, c.ProcessingSummary.Keys())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when missing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT .* FROM case_states WHERE case_id = \$1`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		c, err := repo.Get(ctx, "missing")
		assert.Nil(t, c)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps other errors", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT .* FROM case_states`).
			WithArgs("case-1").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(ctx, "case-1")
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestPgCaseRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts the case", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		c := &domain.CaseState{CaseID: "case-1", VideoPath: "videos/crash.mp4", Step: domain.CaseStepVideoUploaded}

		mock.ExpectExec(`INSERT INTO case_states .* ON CONFLICT \(case_id\) DO UPDATE`).
			WithArgs("case-1", "videos/crash.mp4", pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), "video_uploaded", pgxmock.AnyArg(), fixedNow()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Save(ctx, c))
		assert.Equal(t, fixedNow(), c.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid cases", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		err := repo.Save(ctx, &domain.CaseState{CaseID: "../etc", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		err = repo.Save(ctx, &domain.CaseState{CaseID: "case-1", Step: domain.CaseStepVideoUploaded})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		err = repo.Save(ctx, nil)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgCaseRepository_Update(t *testing.T) {
	ctx := context.Background()

	uploadedRow := func() *pgxmock.Rows {
		return pgxmock.NewRows(caseRowColumns).AddRow(
			"case-1", "videos/crash.mp4", nil, nil, nil, "video_uploaded", nil, fixedNow(),
		)
	}

	t.Run("locks, applies and commits", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM case_states WHERE case_id = \$1 FOR UPDATE`).
			WithArgs("case-1").
			WillReturnRows(uploadedRow())
		mock.ExpectExec(`INSERT INTO case_states`).
			WithArgs("case-1", "videos/crash.mp4", pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), "processing", strPtr("wf-9"), fixedNow()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
			c.WorkflowID = "wf-9"
			return c.TransitionTo(domain.CaseStepProcessing)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FOR UPDATE`).
			WithArgs("case-1").
			WillReturnRows(uploadedRow())
		mock.ExpectRollback()

		err := repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
			return c.TransitionTo(domain.CaseStepVideoProcessed)
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FOR UPDATE`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := repo.Update(ctx, "missing", func(*domain.CaseState) error {
			t.Fatal("fn must not run for a missing case")
			return nil
		})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := repo.Update(ctx, "case-1", func(*domain.CaseState) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin transaction")
	})
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "x", *nullString("x"))
	assert.Equal(t, "", derefString(nil))
}
