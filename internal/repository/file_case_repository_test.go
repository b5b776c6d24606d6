package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

func TestFileCaseRepository_SaveGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileCaseRepository(filepath.Join(dir, "cases"))
	require.NoError(t, err)

	summary := domain.NewSummary().
		Set("total_collision_events", domain.Int(1)).
		Set("frames_processed", domain.Int(240))
	c := &domain.CaseState{
		CaseID:             "case-1",
		VideoPath:          "videos/crash.mp4",
		ProcessedVideoPath: "videos/tracked_crash.mp4",
		ProcessingSummary:  summary,
		Step:               domain.CaseStepVideoProcessed,
	}
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "videos/tracked_crash.mp4", got.ProcessedVideoPath)
	assert.Equal(t, domain.CaseStepVideoProcessed, got.Step)
	assert.Equal(t, []string{"total_collision_events", "frames_processed"}, got.ProcessingSummary.Keys())

	data, err := os.ReadFile(filepath.Join(dir, "cases", "case-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processed_video_path": "videos/tracked_crash.mp4"`)

	entries, err := os.ReadDir(filepath.Join(dir, "cases"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileCaseRepository_NotFoundAndInvalidID(t *testing.T) {
	repo, err := NewFileCaseRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = repo.Get(context.Background(), "../secrets")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = repo.Update(context.Background(), "missing", func(*domain.CaseState) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFileCaseRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo, err := NewFileCaseRepository(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded}))

	require.NoError(t, repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
		return c.TransitionTo(domain.CaseStepProcessing)
	}))

	sentinel := errors.New("abort")
	err = repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
		c.VideoPath = "changed.mp4"
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStepProcessing, got.Step)
	assert.Equal(t, "v.mp4", got.VideoPath, "aborted update is not persisted")
}

func TestFileCaseRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo, err := NewFileCaseRepository(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded}))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
				c.ProcessingError += "x"
				return nil
			}))
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Len(t, got.ProcessingError, n)
}

func TestNewFileCaseRepository_RequiresDir(t *testing.T) {
	_, err := NewFileCaseRepository("")
	assert.Error(t, err)
}
