package disposition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// CRM is the collaborator surface the executor fans side effects out to.
// internal/contacts provides both the Postgres implementation and an
// in-memory one for tests.
type CRM interface {
	SetDoNotCall(ctx context.Context, contactID, reason string) error
	AppendNote(ctx context.Context, contactID, body string) error
	AddTag(ctx context.Context, contactID, tag string) error
	RemoveTag(ctx context.Context, contactID, tag string) error
	CreateTask(ctx context.Context, contactID, title string, dueAt *time.Time) error
	Enroll(ctx context.Context, contactID, sequenceID string) error
	QueueSMS(ctx context.Context, contactID, templateID string) error
	QueueEmail(ctx context.Context, contactID, templateID string) error
	UpdateStage(ctx context.Context, contactID, stageID string) error
}

// Executor runs a disposition's configured actions against the CRM.
//
// Execution is strictly ordered by sort order and best-effort per action:
// a failing action is recorded and the next one still runs. There is no
// rollback. At-least-once semantics, so every collaborator call must be
// safe to repeat.
type Executor struct {
	crm   CRM
	log   *slog.Logger
	clock func() time.Time
}

func NewExecutor(crm CRM, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{crm: crm, log: log, clock: time.Now}
}

// Execute applies the actions for one contact and returns the per-action
// breakdown in execution order. Inactive actions are skipped and do not
// appear in the result list.
func (e *Executor) Execute(ctx context.Context, actions []Action, contactID string) []ActionResult {
	ordered := sortActions(actions)
	results := make([]ActionResult, 0, len(ordered))
	for _, a := range ordered {
		if !a.Active {
			continue
		}
		res := ActionResult{ActionID: a.ID, Type: a.Type, Success: true}
		if err := e.apply(ctx, a, contactID); err != nil {
			res.Success = false
			res.Error = err.Error()
			e.log.Warn("disposition action failed",
				"contact_id", contactID, "action_id", a.ID, "type", a.Type, "err", err)
		}
		results = append(results, res)
	}
	return results
}

func (e *Executor) apply(ctx context.Context, a Action, contactID string) error {
	switch a.Type {
	case ActionAddTag:
		cfg, err := decodeConfig[tagConfig](a)
		if err != nil {
			return err
		}
		return e.crm.AddTag(ctx, contactID, cfg.Tag)
	case ActionRemoveTag:
		cfg, err := decodeConfig[tagConfig](a)
		if err != nil {
			return err
		}
		return e.crm.RemoveTag(ctx, contactID, cfg.Tag)
	case ActionAddToDNC:
		var cfg dncConfig
		// Reason is optional; an empty config is valid here.
		if len(a.Config) > 0 {
			if err := json.Unmarshal(a.Config, &cfg); err != nil {
				return fmt.Errorf("disposition: decoding %s config: %w", a.Type, err)
			}
		}
		return e.crm.SetDoNotCall(ctx, contactID, cfg.Reason)
	case ActionCreateTask:
		cfg, err := decodeConfig[taskConfig](a)
		if err != nil {
			return err
		}
		var dueAt *time.Time
		if cfg.DueInHours > 0 {
			t := e.clock().UTC().Add(time.Duration(cfg.DueInHours) * time.Hour)
			dueAt = &t
		}
		return e.crm.CreateTask(ctx, contactID, cfg.Title, dueAt)
	case ActionTriggerSequence:
		cfg, err := decodeConfig[sequenceConfig](a)
		if err != nil {
			return err
		}
		return e.crm.Enroll(ctx, contactID, cfg.SequenceID)
	case ActionSendSMS:
		cfg, err := decodeConfig[templateConfig](a)
		if err != nil {
			return err
		}
		return e.crm.QueueSMS(ctx, contactID, cfg.TemplateID)
	case ActionSendEmail:
		cfg, err := decodeConfig[templateConfig](a)
		if err != nil {
			return err
		}
		return e.crm.QueueEmail(ctx, contactID, cfg.TemplateID)
	case ActionUpdateDealStage:
		cfg, err := decodeConfig[stageConfig](a)
		if err != nil {
			return err
		}
		return e.crm.UpdateStage(ctx, contactID, cfg.StageID)
	default:
		return fmt.Errorf("disposition: unknown action type %q", a.Type)
	}
}

type tagConfig struct {
	Tag string `json:"tag"`
}

type dncConfig struct {
	Reason string `json:"reason"`
}

type taskConfig struct {
	Title      string `json:"title"`
	DueInHours int    `json:"due_in_hours"`
}

type sequenceConfig struct {
	SequenceID string `json:"sequence_id"`
}

type templateConfig struct {
	TemplateID string `json:"template_id"`
}

type stageConfig struct {
	StageID string `json:"stage_id"`
}

func decodeConfig[T any](a Action) (T, error) {
	var cfg T
	if err := json.Unmarshal(a.Config, &cfg); err != nil {
		return cfg, fmt.Errorf("disposition: decoding %s config: %w", a.Type, err)
	}
	return cfg, nil
}
