package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scope selects which order management surface a request goes through.
type Scope int

const (
	ScopeAdmin Scope = iota + 1
	ScopeVendor
)

func (s Scope) String() string {
	switch s {
	case ScopeAdmin:
		return "admin"
	case ScopeVendor:
		return "vendor"
	default:
		return "unknown"
	}
}

// ParseScope accepts "admin" or "vendor".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return ScopeAdmin, nil
	case "vendor":
		return ScopeVendor, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", s)
	}
}

func (s Scope) orderPath(id int64) (string, error) {
	switch s {
	case ScopeAdmin:
		return fmt.Sprintf("/admin/orders/%d/", id), nil
	case ScopeVendor:
		return fmt.Sprintf("/orders/vendor/orders/%d/", id), nil
	default:
		return "", fmt.Errorf("unknown scope %d", int(s))
	}
}

// Order is the order detail shared by the admin and vendor endpoints.
type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	CustomerEmail string          `json:"customer_email"`
	Note          string          `json:"note"`
	StatusHistory []StatusEntry   `json:"status_history"`
	// AllowedNext is sent by the vendor endpoint only.
	AllowedNext   []string        `json:"allowed_next_statuses,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StatusEntry is one server-side status history row.
type StatusEntry struct {
	ID             int64     `json:"id"`
	Status         string    `json:"status"`
	Note           string    `json:"note"`
	ChangedAt      time.Time `json:"changed_at"`
	ChangedBy      *int64    `json:"changed_by"`
	ChangedByEmail string    `json:"changed_by_email"`
}

func (c *Client) GetOrder(ctx context.Context, scope Scope, id int64) (Order, error) {
	path, err := scope.orderPath(id)
	if err != nil {
		return Order{}, err
	}

	var out Order
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

// UpdateOrderStatus asks the server to move an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, scope Scope, id int64, status, note string) (Order, error) {
	path, err := scope.orderPath(id)
	if err != nil {
		return Order{}, err
	}

	in := map[string]string{"status": status, "note": note}

	var out Order
	if err := c.do(ctx, http.MethodPatch, path, in, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}
