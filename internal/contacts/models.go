// Package contacts is the adapter boundary to the CRM data model. The CRM
// itself (contacts, lists, tags, tasks, deals) lives outside this core; this
// package exposes only what the dialer and disposition engines need from it.
package contacts

import (
	"context"
	"errors"
)

var ErrExhausted = errors.New("contacts: list exhausted")

// Contact is the minimal projection the dialer needs.
type Contact struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Phone     string `json:"phone" db:"phone"`
	DoNotCall bool   `json:"do_not_call" db:"do_not_call"`
}

// Source walks a call list in position order.
//
// Cursor semantics: Next returns the first contact at or after cursor along
// with the cursor value for the following contact. The cursor is
// monotonically non-decreasing within a run; pause/resume must never rewind
// it past already-attempted contacts.
type Source interface {
	Next(ctx context.Context, listID string, cursor int) (Contact, int, error)
	Remaining(ctx context.Context, listID string, cursor int) (int, error)
}
