// Package order validates order status transitions before they are sent to
// the server, which remains the authority.
package order

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dtroode/storefront-client/internal/model"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

// Table is the transition table shared by every order management surface.
// Terminal statuses have no outgoing edges.
var Table = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// ParseStatus accepts any casing and surrounding whitespace.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Table[st]; !ok {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsTerminal() bool {
	return len(Table[s]) == 0
}

// RequiresNote reports whether moving into s needs a non-empty note.
func (s Status) RequiresNote() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// AllowedNext returns the statuses reachable from s in one step.
func AllowedNext(s Status) []Status {
	return slices.Clone(Table[s])
}

// CanTransition reports whether from may move to to. Staying on the same
// status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(Table[from], to)
}

type schema struct {
	Statuses     []Status            `json:"statuses"`
	Transitions  map[Status][]Status `json:"transitions"`
	NoteRequired []Status            `json:"note_required"`
	Terminal     []Status            `json:"terminal"`
}

// SchemaJSON renders the transition table for other consumers.
func SchemaJSON() ([]byte, error) {
	s := schema{
		Statuses:    Statuses,
		Transitions: Table,
	}
	for _, st := range Statuses {
		if st.RequiresNote() {
			s.NoteRequired = append(s.NoteRequired, st)
		}
		if st.IsTerminal() {
			s.Terminal = append(s.Terminal, st)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}
