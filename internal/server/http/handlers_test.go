package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
	"github.com/helixir/vehicle-tracking-service/internal/repository"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// mockWorkflowClient implements WorkflowClient with overridable functions.
type mockWorkflowClient struct {
	executeFn   func(ctx context.Context, job domain.JobDescriptor, opts temporal.StartOptions) (*domain.JobResult, error)
	executionFn func(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error)
	cancelFn    func(ctx context.Context, workflowID, reason string) error
	terminateFn func(ctx context.Context, workflowID, reason string) error
	healthFn    func(ctx context.Context) error
}

func (m *mockWorkflowClient) ExecuteWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...temporal.StartOption) (*domain.JobResult, error) {
	var so temporal.StartOptions
	for _, opt := range opts {
		opt(&so)
	}
	if m.executeFn != nil {
		return m.executeFn(ctx, job, so)
	}
	return domain.NewSuccessResult(job.OutputPath, domain.NewSummary()), nil
}

func (m *mockWorkflowClient) GetExecution(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	if m.executionFn != nil {
		return m.executionFn(ctx, workflowID)
	}
	return nil, domain.NewNotFoundError("workflow", workflowID)
}

func (m *mockWorkflowClient) CancelWorkflow(ctx context.Context, workflowID, reason string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, workflowID, reason)
	}
	return nil
}

func (m *mockWorkflowClient) TerminateWorkflow(ctx context.Context, workflowID, reason string) error {
	if m.terminateFn != nil {
		return m.terminateFn(ctx, workflowID, reason)
	}
	return nil
}

func (m *mockWorkflowClient) Health(ctx context.Context) error {
	if m.healthFn != nil {
		return m.healthFn(ctx)
	}
	return nil
}

type publishedResult struct {
	caseID     string
	workflowID string
	result     *domain.JobResult
}

// recordingSink implements events.ResultSink.
type recordingSink struct {
	mu        sync.Mutex
	published []publishedResult
}

func (s *recordingSink) PublishResult(_ context.Context, caseID, workflowID string, result *domain.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, publishedResult{caseID: caseID, workflowID: workflowID, result: result})
	return nil
}

func (s *recordingSink) all() []publishedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedResult(nil), s.published...)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	srv   *Server
	cases repository.CaseRepository
	sink  *recordingSink
}

func newTestEnv(t *testing.T, wf *mockWorkflowClient, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	repo, err := repository.NewFileCaseRepository(t.TempDir())
	require.NoError(t, err)
	sink := &recordingSink{}
	srv := NewServer(Config{Address: "127.0.0.1:0"}, wf, repo, sink, limiter, nil, zerolog.Nop())
	return &testEnv{srv: srv, cases: repo, sink: sink}
}

// serve sends a request through the router.
func (e *testEnv) serve(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

// drain waits until every background job has persisted its outcome.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.srv.runner.Shutdown(ctx))
}

func (e *testEnv) seedCase(t *testing.T, c *domain.CaseState) {
	t.Helper()
	require.NoError(t, e.cases.Save(context.Background(), c))
}

func (e *testEnv) loadCase(t *testing.T, caseID string) *domain.CaseState {
	t.Helper()
	c, err := e.cases.Get(context.Background(), caseID)
	require.NoError(t, err)
	return c
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(target))
}

func uploadedCase(caseID, videoPath string) *domain.CaseState {
	return &domain.CaseState{CaseID: caseID, VideoPath: videoPath, Step: domain.CaseStepVideoUploaded}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, nil)
	rr := env.serve(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := newTestEnv(t, &mockWorkflowClient{}, nil)
		rr := env.serve(http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ready","temporal":"healthy"}`, rr.Body.String())
	})

	t.Run("temporal unavailable", func(t *testing.T) {
		env := newTestEnv(t, &mockWorkflowClient{
			healthFn: func(context.Context) error { return domain.ErrNotConnected },
		}, nil)
		rr := env.serve(http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get(requestIDHeader))
}

// ---------------------------------------------------------------------------
// Cases
// ---------------------------------------------------------------------------

func TestRegisterCase_Creates(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, nil)

	rr := env.serve(http.MethodPut, "/api/v1/cases/case-1", `{"video_path":"videos/crash.mp4"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp caseResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "case-1", resp.CaseID)
	assert.Equal(t, "videos/crash.mp4", resp.VideoPath)
	assert.Equal(t, string(domain.CaseStepVideoUploaded), resp.Step)
	assert.False(t, resp.UpdatedAt.IsZero())
}

func TestRegisterCase_ReplacesVideoAndResetsOutcome(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, nil)
	env.seedCase(t, &domain.CaseState{
		CaseID:             "case-1",
		VideoPath:          "videos/old.mp4",
		ProcessedVideoPath: "videos/tracked_old.mp4",
		ProcessingSummary:  domain.NewSummary().Set("total_collision_events", domain.Int(3)),
		Step:               domain.CaseStepVideoProcessed,
		WorkflowID:         "wf-old",
	})

	rr := env.serve(http.MethodPut, "/api/v1/cases/case-1", `{"video_path":"videos/new.mp4"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	c := env.loadCase(t, "case-1")
	assert.Equal(t, "videos/new.mp4", c.VideoPath)
	assert.Equal(t, domain.CaseStepVideoUploaded, c.Step)
	assert.Empty(t, c.ProcessedVideoPath)
	assert.Nil(t, c.ProcessingSummary)
	assert.Empty(t, c.WorkflowID)
}

func TestRegisterCase_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		seed       *domain.CaseState
		wantStatus int
	}{
		{name: "missing body", path: "/api/v1/cases/case-1", wantStatus: http.StatusBadRequest},
		{name: "invalid JSON", path: "/api/v1/cases/case-1", body: `{"video_path":`, wantStatus: http.StatusBadRequest},
		{name: "blank video path", path: "/api/v1/cases/case-1", body: `{"video_path":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "invalid case ID", path: "/api/v1/cases/-case", body: `{"video_path":"v.mp4"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "case is processing",
			path:       "/api/v1/cases/case-1",
			body:       `{"video_path":"v.mp4"}`,
			seed:       &domain.CaseState{CaseID: "case-1", VideoPath: "old.mp4", Step: domain.CaseStepProcessing, WorkflowID: "wf-1"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &mockWorkflowClient{}, nil)
			if tt.seed != nil {
				env.seedCase(t, tt.seed)
			}
			rr := env.serve(http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestGetCase(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, nil)

	rr := env.serve(http.MethodGet, "/api/v1/cases/case-1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.seedCase(t, uploadedCase("case-1", "videos/a.mp4"))
	rr = env.serve(http.MethodGet, "/api/v1/cases/case-1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp caseResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "videos/a.mp4", resp.VideoPath)
}

// ---------------------------------------------------------------------------
// Processing
// ---------------------------------------------------------------------------

func TestProcessCase_DemoSuccess(t *testing.T) {
	var (
		gotJob  domain.JobDescriptor
		gotOpts temporal.StartOptions
	)
	wf := &mockWorkflowClient{
		executeFn: func(_ context.Context, job domain.JobDescriptor, opts temporal.StartOptions) (*domain.JobResult, error) {
			gotJob, gotOpts = job, opts
			return domain.NewSuccessResult(job.OutputPath,
				domain.NewSummary().Set("total_collision_events", domain.Int(1))), nil
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-1", "videos/demo.mov"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", `{"demo":true}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp processCaseResponse
	decodeJSON(t, rr, &resp)
	assert.Regexp(t, `^video-tracking-\d+-[0-9a-f]{8}$`, resp.WorkflowID)
	assert.Equal(t, "videos/demo_tracked_demo.mov", resp.OutputPath)
	assert.Equal(t, string(domain.CaseStepProcessing), resp.Step)

	env.drain(t)

	assert.Equal(t, resp.WorkflowID, gotOpts.WorkflowID)
	assert.Equal(t, "videos/demo.mov", gotJob.InputPath)
	assert.Equal(t, 0.25, gotJob.ConfidenceThreshold)
	assert.Equal(t, 60.0, gotJob.CollisionDistanceThreshold)
	assert.Equal(t, 0.08, gotJob.OverlapThreshold)

	c := env.loadCase(t, "case-1")
	assert.Equal(t, domain.CaseStepVideoProcessed, c.Step)
	assert.Equal(t, "videos/demo_tracked_demo.mov", c.ProcessedVideoPath)
	assert.Empty(t, c.ProcessingError)
	assert.Equal(t, resp.WorkflowID, c.WorkflowID)
	require.NotNil(t, c.ProcessingSummary)
	assert.Equal(t, []string{"total_collision_events"}, c.ProcessingSummary.Keys())

	published := env.sink.all()
	require.Len(t, published, 1)
	assert.Equal(t, "case-1", published[0].caseID)
	assert.Equal(t, resp.WorkflowID, published[0].workflowID)
	assert.True(t, published[0].result.Success)
}

func TestProcessCase_StandardOverrides(t *testing.T) {
	var gotJob domain.JobDescriptor
	wf := &mockWorkflowClient{
		executeFn: func(_ context.Context, job domain.JobDescriptor, _ temporal.StartOptions) (*domain.JobResult, error) {
			gotJob = job
			return domain.NewSuccessResult(job.OutputPath, nil), nil
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-2", "videos/road.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-2/process",
		`{"model_path":"models/yolo11s.pt","output_path":"out/road_annotated.mp4"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	env.drain(t)

	assert.Equal(t, "models/yolo11s.pt", gotJob.ModelPath)
	assert.Equal(t, "out/road_annotated.mp4", gotJob.OutputPath)
	assert.Equal(t, 0.4, gotJob.ConfidenceThreshold)
	assert.Equal(t, 45.0, gotJob.CollisionDistanceThreshold)
	assert.Equal(t, 0.12, gotJob.OverlapThreshold)
}

func TestProcessCase_EmptyBodyUsesStandardPreset(t *testing.T) {
	var gotJob domain.JobDescriptor
	wf := &mockWorkflowClient{
		executeFn: func(_ context.Context, job domain.JobDescriptor, _ temporal.StartOptions) (*domain.JobResult, error) {
			gotJob = job
			return domain.NewSuccessResult(job.OutputPath, nil), nil
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-3", "videos/a.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-3/process", "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	env.drain(t)

	assert.Equal(t, "videos/tracked_a.mp4", gotJob.OutputPath)
	assert.Equal(t, domain.DefaultModelPath, gotJob.ModelPath)
}

func TestProcessCase_JobFailureRevertsStep(t *testing.T) {
	wf := &mockWorkflowClient{
		executeFn: func(context.Context, domain.JobDescriptor, temporal.StartOptions) (*domain.JobResult, error) {
			return domain.NewFailureResult("no vehicles detected", nil), nil
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-1", "videos/empty.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	env.drain(t)

	c := env.loadCase(t, "case-1")
	assert.Equal(t, domain.CaseStepVideoUploaded, c.Step)
	assert.Equal(t, "no vehicles detected", c.ProcessingError)
	assert.Empty(t, c.ProcessedVideoPath)

	published := env.sink.all()
	require.Len(t, published, 1)
	assert.False(t, published[0].result.Success)
}

func TestProcessCase_ConnectionErrorIsRecorded(t *testing.T) {
	wf := &mockWorkflowClient{
		executeFn: func(context.Context, domain.JobDescriptor, temporal.StartOptions) (*domain.JobResult, error) {
			return nil, domain.NewConnectionError("localhost:7233", errors.New("connection refused"))
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-1", "videos/a.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	env.drain(t)

	c := env.loadCase(t, "case-1")
	assert.Equal(t, domain.CaseStepVideoUploaded, c.Step)
	assert.Contains(t, c.ProcessingError, "localhost:7233")
	assert.True(t, c.Step.IsRetryEligible())

	published := env.sink.all()
	require.Len(t, published, 1)
	assert.Contains(t, published[0].result.ErrorMessage, "connection refused")
}

func TestProcessCase_PanicIsContained(t *testing.T) {
	wf := &mockWorkflowClient{
		executeFn: func(context.Context, domain.JobDescriptor, temporal.StartOptions) (*domain.JobResult, error) {
			panic("decoder exploded")
		},
	}
	env := newTestEnv(t, wf, nil)
	env.seedCase(t, uploadedCase("case-1", "videos/a.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	env.drain(t)

	c := env.loadCase(t, "case-1")
	assert.Equal(t, domain.CaseStepVideoUploaded, c.Step)
	assert.Contains(t, c.ProcessingError, "panicked")
	assert.Contains(t, c.ProcessingError, "decoder exploded")
}

func TestProcessCase_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		seed       *domain.CaseState
		body       string
		wantStatus int
	}{
		{name: "unknown case", wantStatus: http.StatusNotFound},
		{
			name:       "already processing",
			seed:       &domain.CaseState{CaseID: "case-1", VideoPath: "v.mp4", Step: domain.CaseStepProcessing, WorkflowID: "wf-1"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "invalid JSON",
			seed:       uploadedCase("case-1", "v.mp4"),
			body:       `{"demo":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executed := false
			wf := &mockWorkflowClient{
				executeFn: func(context.Context, domain.JobDescriptor, temporal.StartOptions) (*domain.JobResult, error) {
					executed = true
					return nil, nil
				},
			}
			env := newTestEnv(t, wf, nil)
			if tt.seed != nil {
				env.seedCase(t, tt.seed)
			}

			rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			env.drain(t)
			assert.False(t, executed)
		})
	}
}

func TestProcessCase_RateLimited(t *testing.T) {
	env := newTestEnv(t, &mockWorkflowClient{}, ratelimit.New(0.01, 1))
	env.seedCase(t, uploadedCase("case-1", "videos/a.mp4"))
	env.seedCase(t, uploadedCase("case-2", "videos/b.mp4"))

	rr := env.serve(http.MethodPost, "/api/v1/cases/case-1/process", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = env.serve(http.MethodPost, "/api/v1/cases/case-2/process", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	env.drain(t)
	assert.Equal(t, domain.CaseStepVideoUploaded, env.loadCase(t, "case-2").Step)
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

func TestGetWorkflow(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	wf := &mockWorkflowClient{
		executionFn: func(_ context.Context, workflowID string) (*domain.WorkflowExecution, error) {
			if workflowID != "wf-1" {
				return nil, &temporal.TemporalError{Op: "GetWorkflowHandle", Kind: temporal.ErrWorkflowNotFound, WorkflowID: workflowID}
			}
			return &domain.WorkflowExecution{
				WorkflowID:    "wf-1",
				RunID:         "run-1",
				Phase:         domain.PhaseProcessing,
				StatusMessage: "Processing video",
				History: []domain.PhaseTransition{
					{Phase: domain.PhaseInitializing, StatusMessage: "Initializing", At: at},
					{Phase: domain.PhaseProcessing, StatusMessage: "Processing video", At: at},
				},
			}, nil
		},
	}
	env := newTestEnv(t, wf, nil)

	rr := env.serve(http.MethodGet, "/api/v1/workflows/wf-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var exec domain.WorkflowExecution
	decodeJSON(t, rr, &exec)
	assert.Equal(t, domain.PhaseProcessing, exec.Phase)
	assert.Len(t, exec.History, 2)

	rr = env.serve(http.MethodGet, "/api/v1/workflows/wf-missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelWorkflow(t *testing.T) {
	var gotID, gotReason string
	wf := &mockWorkflowClient{
		cancelFn: func(_ context.Context, workflowID, reason string) error {
			gotID, gotReason = workflowID, reason
			return nil
		},
	}
	env := newTestEnv(t, wf, nil)

	rr := env.serve(http.MethodPost, "/api/v1/workflows/wf-1/cancel", `{"reason":"wrong video"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "wf-1", gotID)
	assert.Equal(t, "wrong video", gotReason)

	var resp workflowControlResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "cancel_requested", resp.Status)

	rr = env.serve(http.MethodPost, "/api/v1/workflows/wf-1/cancel", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, defaultCancelReason, gotReason)
}

func TestCancelWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not connected", err: &temporal.TemporalError{Op: "CancelWorkflow", Kind: domain.ErrNotConnected}, wantStatus: http.StatusServiceUnavailable},
		{name: "finished workflow", err: &temporal.TemporalError{Op: "CancelWorkflow", Kind: temporal.ErrWorkflowNotFound}, wantStatus: http.StatusNotFound},
		{name: "deadline", err: &temporal.TemporalError{Op: "CancelWorkflow", Kind: temporal.ErrDeadlineExceeded}, wantStatus: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &mockWorkflowClient{
				cancelFn: func(context.Context, string, string) error { return tt.err },
			}, nil)
			rr := env.serve(http.MethodPost, "/api/v1/workflows/wf-1/cancel", "")
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestTerminateWorkflow(t *testing.T) {
	var gotReason string
	wf := &mockWorkflowClient{
		terminateFn: func(_ context.Context, _, reason string) error {
			gotReason = reason
			return nil
		},
	}
	env := newTestEnv(t, wf, nil)

	rr := env.serve(http.MethodPost, "/api/v1/workflows/wf-1/terminate", `{"reason":"stuck"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "stuck", gotReason)

	rr = env.serve(http.MethodPost, "/api/v1/workflows/wf-1/terminate", `{"reason":"`+string(bytes.Repeat([]byte("x"), maxReasonLen+1))+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
