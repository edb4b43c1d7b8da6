package disposition

import "encoding/json"

// ActionType enumerates the configured side effects a disposition can fan
// out to. Each maps to one CRM collaborator call.
type ActionType string

const (
	ActionAddTag          ActionType = "ADD_TAG"
	ActionRemoveTag       ActionType = "REMOVE_TAG"
	ActionAddToDNC        ActionType = "ADD_TO_DNC"
	ActionCreateTask      ActionType = "CREATE_TASK"
	ActionTriggerSequence ActionType = "TRIGGER_SEQUENCE"
	ActionSendSMS         ActionType = "SEND_SMS"
	ActionSendEmail       ActionType = "SEND_EMAIL"
	ActionUpdateDealStage ActionType = "UPDATE_DEAL_STAGE"
)

// Action is one configured side effect. Config is a free-form payload whose
// shape depends on Type (tag name, task title, template id and so on).
type Action struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Config    json.RawMessage `json:"config"`
	SortOrder int             `json:"sort_order"`
	Active    bool            `json:"active"`
}

// Disposition is a named call outcome with its ordered action list.
//
// IsSystem dispositions ship with the product and cannot be deleted.
// MarksDoNotCall dispositions always set the contact's DNC flag directly,
// whether or not an ADD_TO_DNC action is configured.
type Disposition struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	IsSystem       bool     `json:"is_system"`
	Active         bool     `json:"active"`
	MarksDoNotCall bool     `json:"marks_do_not_call"`
	Actions        []Action `json:"actions"`
}

// ActionResult records one action's outcome. A failed action never aborts
// the ones after it, so callers get the full breakdown.
type ActionResult struct {
	ActionID string     `json:"action_id"`
	Type     ActionType `json:"type"`
	Success  bool       `json:"success"`
	Error    string     `json:"error,omitempty"`
}
