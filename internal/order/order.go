package order

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dtroode/storefront-client/internal/model"
)

// Transition is one immutable status history record.
type Transition struct {
	ID    uuid.UUID
	From  Status
	To    Status
	Note  string
	Actor string
	At    time.Time
}

// Order is the client view of an order.
type Order struct {
	ID            int64
	Number        string
	Status        Status
	PaymentStatus string
	Total         decimal.Decimal
	CustomerEmail string
	History       []Transition
	UpdatedAt     time.Time
	// ServerNext is the server's own list of reachable statuses, when it
	// sends one. It narrows Table, never widens it.
	ServerNext    []Status
}

// Next returns the statuses o may move to: the table's successors of its
// status, restricted to ServerNext when the server provided one.
func (o Order) Next() []Status {
	next := AllowedNext(o.Status)
	if o.ServerNext == nil {
		return next
	}
	return slices.DeleteFunc(next, func(st Status) bool {
		return !slices.Contains(o.ServerNext, st)
	})
}

// RequestTransition validates moving o to next and returns the updated order
// with one record appended to its history. o is not modified.
func RequestTransition(o Order, next Status, note, actor string, now time.Time) (Order, error) {
	if _, ok := Table[next]; !ok {
		return Order{}, fmt.Errorf("%w: %q", model.ErrUnknownStatus, string(next))
	}
	if next != o.Status && !slices.Contains(o.Next(), next) {
		return Order{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, o.Status, next)
	}

	note = strings.TrimSpace(note)
	if next.RequiresNote() && note == "" {
		return Order{}, model.ErrMissingNote
	}

	t := Transition{
		ID:    uuid.New(),
		From:  o.Status,
		To:    next,
		Note:  note,
		Actor: actor,
		At:    now,
	}

	history := make([]Transition, len(o.History), len(o.History)+1)
	copy(history, o.History)

	o.History = append(history, t)
	o.Status = next
	return o, nil
}
