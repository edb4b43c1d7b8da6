package disposition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"dialer-platform/internal/audit"
)

var ErrInactive = errors.New("disposition: disposition is inactive")

// Service resolves a disposition and applies it to a contact.
type Service struct {
	repo  Repository
	exec  *Executor
	crm   CRM
	audit *audit.Service
	log   *slog.Logger
}

func NewService(repo Repository, exec *Executor, crm CRM, auditSvc *audit.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, exec: exec, crm: crm, audit: auditSvc, log: log}
}

type ApplyRequest struct {
	ContactID     string `json:"contact_id"`
	DispositionID string `json:"disposition_id"`
	ActorUserID   string `json:"-"`
	RunID         string `json:"run_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type ApplyResult struct {
	DispositionID   string         `json:"disposition_id"`
	ActionsExecuted int            `json:"actions_executed"`
	Results         []ActionResult `json:"results"`
}

// Apply runs the disposition's actions and the mandatory follow-ups: the
// summary note on the contact, the direct DNC flag for negative-terminal
// dispositions, and the audit record.
//
// The DNC flag is set by Apply itself whenever MarksDoNotCall is true. It
// does not depend on an ADD_TO_DNC action being configured; a misconfigured
// action list must never let a do-not-call request slip through.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	if req.ContactID == "" || req.DispositionID == "" {
		return ApplyResult{}, errors.New("disposition: contact_id and disposition_id are required")
	}
	d, err := s.repo.Get(ctx, req.DispositionID)
	if err != nil {
		return ApplyResult{}, err
	}
	if !d.Active {
		return ApplyResult{}, ErrInactive
	}

	results := s.exec.Execute(ctx, d.Actions, req.ContactID)

	if d.MarksDoNotCall {
		if err := s.crm.SetDoNotCall(ctx, req.ContactID, "disposition: "+d.Name); err != nil {
			// Surfaced, not swallowed: the caller must know the DNC flag
			// did not stick.
			return ApplyResult{}, fmt.Errorf("disposition: setting do-not-call flag: %w", err)
		}
	}

	note := "Disposition: " + d.Name
	if req.Notes != "" {
		note += "\n" + req.Notes
	}
	if err := s.crm.AppendNote(ctx, req.ContactID, note); err != nil {
		s.log.Warn("appending disposition note failed", "contact_id", req.ContactID, "err", err)
	}

	if s.audit != nil {
		meta, _ := json.Marshal(results)
		if err := s.audit.LogDispositionApplied(ctx, req.ActorUserID, req.ContactID, d.ID, req.RunID, "disposition applied: "+d.Name, string(meta)); err != nil {
			s.log.Warn("audit append failed", "contact_id", req.ContactID, "err", err)
		}
	}

	executed := 0
	for _, r := range results {
		if r.Success {
			executed++
		}
	}
	return ApplyResult{
		DispositionID:   d.ID,
		ActionsExecuted: executed,
		Results:         results,
	}, nil
}
