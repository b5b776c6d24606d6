package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// Simulator is a Handler that pretends to run collision detection. It is
// served by the processor stub for local end-to-end runs.
type Simulator struct {
	// Delay is how long each job takes.
	Delay time.Duration

	// CheckInput reports a failed result when the input file does not exist.
	CheckInput bool

	Logger zerolog.Logger
}

// ProcessVideo implements Handler.
func (s *Simulator) ProcessVideo(ctx context.Context, job domain.JobDescriptor) (*domain.JobResult, error) {
	s.Logger.Info().
		Str("input_path", job.InputPath).
		Str("output_path", job.OutputPath).
		Str("model_path", job.ModelPath).
		Msg("simulated processing started")

	if s.CheckInput {
		if _, err := os.Stat(job.InputPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return domain.NewFailureResult(fmt.Sprintf("input video not found: %s", job.InputPath), nil), nil
			}
			return nil, err
		}
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	summary := domain.NewSummary().
		Set("input_video", domain.String(job.InputPath)).
		Set("output_video", domain.String(job.OutputPath)).
		Set("model", domain.String(job.ModelPath)).
		Set("thresholds", domain.Map(domain.NewSummary().
			Set("confidence", domain.Number(job.ConfidenceThreshold)).
			Set("collision_distance", domain.Number(job.CollisionDistanceThreshold)).
			Set("overlap", domain.Number(job.OverlapThreshold)))).
		Set("frames_processed", domain.Int(0)).
		Set("total_collision_events", domain.Int(0)).
		Set("collision_events", domain.List())

	s.Logger.Info().Str("output_path", job.OutputPath).Msg("simulated processing finished")
	return domain.NewSuccessResult(job.OutputPath, summary), nil
}
