package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/storefront-client/internal/api"
	"github.com/dtroode/storefront-client/internal/logger"
)

// Scope re-exports the order management surfaces.
type Scope = api.Scope

const (
	ScopeAdmin  = api.ScopeAdmin
	ScopeVendor = api.ScopeVendor
)

// API is the subset of the storefront client used for orders.
type API interface {
	GetOrder(ctx context.Context, scope api.Scope, id int64) (api.Order, error)
	UpdateOrderStatus(ctx context.Context, scope api.Scope, id int64, status, note string) (api.Order, error)
}

// historyNamespace derives stable ids for server history rows.
var historyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("storefront:order-status-history"))

type Service struct {
	api    API
	logger *logger.Logger
	now    func() time.Time
}

func NewService(client API, logger *logger.Logger) *Service {
	return &Service{api: client, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context, scope Scope, id int64) (Order, error) {
	resp, err := s.api.GetOrder(ctx, scope, id)
	if err != nil {
		return Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return FromAPI(resp)
}

// Submit validates the transition locally, then asks the server to apply it
// and returns the server's order. Nothing is sent when local validation fails.
func (s *Service) Submit(ctx context.Context, scope Scope, current Order, next Status, note, actor string) (Order, error) {
	if _, err := RequestTransition(current, next, note, actor, s.now()); err != nil {
		return Order{}, err
	}

	resp, err := s.api.UpdateOrderStatus(ctx, scope, current.ID, string(next), strings.TrimSpace(note))
	if err != nil {
		s.logger.Warn("Order service: server rejected transition",
			"order_id", current.ID, "from", current.Status, "to", next, "error", err)
		return Order{}, fmt.Errorf("failed to update order status: %w", err)
	}

	updated, err := FromAPI(resp)
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("Order service: status updated",
		"order_id", updated.ID, "scope", scope.String(), "status", updated.Status)
	return updated, nil
}

// FromAPI converts a server order. Each history row's From is the status of
// the row before it.
func FromAPI(o api.Order) (Order, error) {
	status, err := ParseStatus(o.Status)
	if err != nil {
		return Order{}, err
	}

	out := Order{
		ID:            o.ID,
		Number:        o.OrderNumber,
		Status:        status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		CustomerEmail: o.CustomerEmail,
		UpdatedAt:     o.UpdatedAt,
		History:       make([]Transition, 0, len(o.StatusHistory)),
	}
	if o.AllowedNext != nil {
		out.ServerNext = make([]Status, 0, len(o.AllowedNext))
		for _, raw := range o.AllowedNext {
			// Statuses this client does not know cannot be requested anyway.
			if st, err := ParseStatus(raw); err == nil {
				out.ServerNext = append(out.ServerNext, st)
			}
		}
	}

	var prev Status
	for _, h := range o.StatusHistory {
		to, err := ParseStatus(h.Status)
		if err != nil {
			return Order{}, err
		}
		name := strconv.FormatInt(o.ID, 10) + "/" + strconv.FormatInt(h.ID, 10)
		out.History = append(out.History, Transition{
			ID:    uuid.NewSHA1(historyNamespace, []byte(name)),
			From:  prev,
			To:    to,
			Note:  h.Note,
			Actor: h.ChangedByEmail,
			At:    h.ChangedAt,
		})
		prev = to
	}
	return out, nil
}
