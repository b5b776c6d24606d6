package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

func newRedisRepo(t *testing.T) (*RedisCaseRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCaseRepository(rdb, "test:case:"), mr
}

func TestRedisCaseRepository_SaveGet(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)

	c := &domain.CaseState{
		CaseID:            "case-1",
		VideoPath:         "videos/crash.mp4",
		ProcessingSummary: domain.NewSummary().Set("zeta", domain.Int(1)).Set("alpha", domain.Number(0.5)),
		Step:              domain.CaseStepVideoUploaded,
	}
	require.NoError(t, repo.Save(ctx, c))
	assert.True(t, mr.Exists("test:case:case-1"))

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "videos/crash.mp4", got.VideoPath)
	assert.Equal(t, []string{"zeta", "alpha"}, got.ProcessingSummary.Keys())

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRedisCaseRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRedisRepo(t)
	require.NoError(t, repo.Save(ctx, &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded}))

	require.NoError(t, repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
		c.WorkflowID = "wf-1"
		return c.TransitionTo(domain.CaseStepProcessing)
	}))

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStepProcessing, got.Step)
	assert.Equal(t, "wf-1", got.WorkflowID)

	err = repo.Update(ctx, "missing", func(*domain.CaseState) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRedisCaseRepository_UpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)
	require.NoError(t, repo.Save(ctx, &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded}))

	var calls int32
	err := repo.Update(ctx, "case-1", func(c *domain.CaseState) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			// A competing writer touches the key after our read.
			mr.Set("test:case:case-1", `{"case_id":"case-1","video_path":"other.mp4","step":"video_uploaded"}`)
		}
		c.ProcessingError = "seen " + c.VideoPath
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	got, err := repo.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "seen other.mp4", got.ProcessingError)
}

func TestRedisCaseRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRedisRepo(t)
	require.NoError(t, repo.Save(ctx, &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepVideoUploaded}))

	const n = 5
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

func TestRedisCaseRepository_DefaultPrefix(t *testing.T) {
	repo := NewRedisCaseRepository(nil, "")
	assert.Equal(t, DefaultKeyPrefix+"c1", repo.key("c1"))
}
