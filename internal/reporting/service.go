package reporting

import (
	"context"
	"errors"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/dialer"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// RunGetter is the slice of the run store reporting needs.
type RunGetter interface {
	Get(ctx context.Context, runID string) (dialer.Run, error)
}

type Service struct {
	runs     RunGetter
	attempts calls.Store
}

func NewService(runs RunGetter, attempts calls.Store) *Service {
	return &Service{runs: runs, attempts: attempts}
}

func (s *Service) RunSummary(ctx context.Context, runID string) (RunSummary, error) {
	if runID == "" {
		return RunSummary{}, ErrInvalidRequest
	}
	if s.runs == nil || s.attempts == nil {
		return RunSummary{}, errors.New("reporting: service not configured")
	}

	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	rows, err := s.attempts.ListByRun(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}

	out := RunSummary{
		RunID:     run.ID,
		RunName:   run.Name,
		RunStatus: string(run.Status),
	}
	for _, a := range rows {
		out.TotalAttempts++
		out.TotalTalkSeconds += a.DurationSeconds
		switch a.Status {
		case calls.AttemptStatusAnswered:
			out.Answered++
		case calls.AttemptStatusVoicemail:
			out.Voicemail++
		case calls.AttemptStatusNoAnswer:
			out.NoAnswer++
		case calls.AttemptStatusBusy:
			out.Busy++
		case calls.AttemptStatusFailed:
			out.Failed++
		case calls.AttemptStatusCanceled:
			out.Canceled++
		case calls.AttemptStatusDialing:
			// still in flight, not counted as an outcome
		}
	}
	if out.Answered > 0 {
		out.AverageTalkSeconds = out.TotalTalkSeconds / out.Answered
	}
	if out.TotalAttempts > 0 {
		out.ConnectRate = float64(out.Answered) / float64(out.TotalAttempts)
	}
	return out, nil
}
