package httpserver

import (
	"time"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

type registerCaseRequest struct {
	VideoPath string `json:"video_path"`
}

type processCaseRequest struct {
	Demo       bool   `json:"demo"`
	ModelPath  string `json:"model_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type caseResponse struct {
	CaseID             string          `json:"case_id"`
	VideoPath          string          `json:"video_path"`
	ProcessedVideoPath string          `json:"processed_video_path,omitempty"`
	ProcessingSummary  *domain.Summary `json:"processing_summary,omitempty"`
	ProcessingError    string          `json:"processing_error,omitempty"`
	Step               string          `json:"step"`
	WorkflowID         string          `json:"workflow_id,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type processCaseResponse struct {
	CaseID     string `json:"case_id"`
	WorkflowID string `json:"workflow_id"`
	Step       string `json:"step"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	Message    string `json:"message"`
}

type workflowControlResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

func domainCaseToResponse(c *domain.CaseState) caseResponse {
	return caseResponse{
		CaseID:             c.CaseID,
		VideoPath:          c.VideoPath,
		ProcessedVideoPath: c.ProcessedVideoPath,
		ProcessingSummary:  c.ProcessingSummary,
		ProcessingError:    c.ProcessingError,
		Step:               string(c.Step),
		WorkflowID:         c.WorkflowID,
		UpdatedAt:          c.UpdatedAt,
	}
}
