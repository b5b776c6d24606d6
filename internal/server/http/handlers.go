package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxWorkflowIDLen   = 255
	maxReasonLen       = 1024

	defaultCancelReason    = "cancelled via API"
	defaultTerminateReason = "terminated via API"
)

// registerCase handles PUT /cases/{caseID}. It creates the case or
// replaces its video, resetting any previous processing outcome.
func (s *Server) registerCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := observability.CaseIDFromContext(ctx)

	var req registerCaseRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	req.VideoPath = strings.TrimSpace(req.VideoPath)
	if req.VideoPath == "" {
		writeError(w, http.StatusBadRequest, "video_path is required")
		return
	}

	var saved *domain.CaseState
	status := http.StatusOK
	err := s.cases.Update(ctx, caseID, func(c *domain.CaseState) error {
		if c.Step == domain.CaseStepProcessing {
			return fmt.Errorf("case %s: %w: processing is in progress", caseID, domain.ErrInvalidTransition)
		}
		c.VideoPath = req.VideoPath
		c.ProcessedVideoPath = ""
		c.ProcessingSummary = nil
		c.ProcessingError = ""
		c.WorkflowID = ""
		c.Step = domain.CaseStepVideoUploaded
		saved = c
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		saved = &domain.CaseState{
			CaseID:    caseID,
			VideoPath: req.VideoPath,
			Step:      domain.CaseStepVideoUploaded,
		}
		err = s.cases.Save(ctx, saved)
		status = http.StatusCreated
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, status, domainCaseToResponse(saved))
}

// getCase handles GET /cases/{caseID}.
func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := s.cases.Get(ctx, observability.CaseIDFromContext(ctx))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainCaseToResponse(c))
}

// processCase handles POST /cases/{caseID}/process. It moves the case to
// processing, hands the job to the background runner and answers 202
// without waiting for the workflow.
func (s *Server) processCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := observability.CaseIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx, s.logger)

	var req processCaseRequest
	if !decodeBody(w, r, &req, false) {
		s.metrics.RecordCaseTrigger("rejected")
		return
	}

	workflowID := temporal.NewWorkflowID(s.now())
	var job domain.JobDescriptor
	err := s.cases.Update(ctx, caseID, func(c *domain.CaseState) error {
		var err error
		if job, err = buildJob(c.VideoPath, req); err != nil {
			return err
		}
		if err := c.TransitionTo(domain.CaseStepProcessing); err != nil {
			return err
		}
		c.WorkflowID = workflowID
		c.ProcessingError = ""
		return nil
	})
	if err != nil {
		s.metrics.RecordCaseTrigger("rejected")
		writeDomainError(w, err)
		return
	}

	s.runner.Submit(caseID, workflowID, job)
	s.metrics.RecordCaseTrigger("accepted")
	logger.Info().
		Str("workflow_id", workflowID).
		Str("input_path", job.InputPath).
		Bool("demo", req.Demo).
		Msg("case processing accepted")

	writeJSON(w, http.StatusAccepted, processCaseResponse{
		CaseID:     caseID,
		WorkflowID: workflowID,
		Step:       string(domain.CaseStepProcessing),
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		Message:    "video processing started",
	})
}

// buildJob turns the case's video and the request overrides into a
// validated descriptor.
func buildJob(videoPath string, req processCaseRequest) (domain.JobDescriptor, error) {
	if strings.TrimSpace(videoPath) == "" {
		return domain.JobDescriptor{}, domain.NewValidationError("video_path", "case has no video registered")
	}
	opts := []domain.JobOption{domain.WithModelPath(strings.TrimSpace(req.ModelPath))}
	if out := strings.TrimSpace(req.OutputPath); out != "" {
		opts = append(opts, domain.WithOutputPath(out))
	}
	if req.Demo {
		return domain.NewDemoModeRequest(videoPath, opts...)
	}
	return domain.NewStandardModeRequest(videoPath, opts...)
}

// getWorkflow handles GET /workflows/{workflowID}.
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := parseWorkflowID(w, r)
	if !ok {
		return
	}

	exec, err := s.workflows.GetExecution(r.Context(), workflowID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

// cancelWorkflow handles POST /workflows/{workflowID}/cancel. Cancellation
// is cooperative, so the response only acknowledges the request.
func (s *Server) cancelWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, reason, ok := s.parseControlRequest(w, r, defaultCancelReason)
	if !ok {
		return
	}

	if err := s.workflows.CancelWorkflow(r.Context(), workflowID, reason); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, workflowControlResponse{
		WorkflowID: workflowID,
		Status:     "cancel_requested",
		Reason:     reason,
	})
}

// terminateWorkflow handles POST /workflows/{workflowID}/terminate.
func (s *Server) terminateWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, reason, ok := s.parseControlRequest(w, r, defaultTerminateReason)
	if !ok {
		return
	}

	if err := s.workflows.TerminateWorkflow(r.Context(), workflowID, reason); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, workflowControlResponse{
		WorkflowID: workflowID,
		Status:     "terminated",
		Reason:     reason,
	})
}

func (s *Server) parseControlRequest(w http.ResponseWriter, r *http.Request, defaultReason string) (workflowID, reason string, ok bool) {
	workflowID, ok = parseWorkflowID(w, r)
	if !ok {
		return "", "", false
	}
	var req reasonRequest
	if !decodeBody(w, r, &req, false) {
		return "", "", false
	}
	reason = strings.TrimSpace(req.Reason)
	if len(reason) > maxReasonLen {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("reason must be at most %d characters", maxReasonLen))
		return "", "", false
	}
	if reason == "" {
		reason = defaultReason
	}
	return workflowID, reason, true
}

// parseWorkflowID reads the workflowID path parameter, writing a 400 error
// response if it is unusable.
func parseWorkflowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	workflowID := strings.TrimSpace(chi.URLParam(r, "workflowID"))
	if workflowID == "" || len(workflowID) > maxWorkflowIDLen {
		writeError(w, http.StatusBadRequest, "workflow_id is invalid")
		return "", false
	}
	return workflowID, true
}

// decodeBody reads a size-limited JSON body into v. An empty body is
// accepted unless required is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, required bool) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if required {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// writeDomainError maps domain and temporal errors to appropriate HTTP status codes
// and writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "case is not in a state that allows this operation")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "workflow already started")
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrConnection):
		writeError(w, http.StatusServiceUnavailable, "orchestration server unavailable")
	case errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "orchestration request timed out")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
