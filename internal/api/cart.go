package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dtroode/storefront-client/internal/model"
)

// Cart is the server-canonical cart.
type Cart struct {
	ID        int64      `json:"id"`
	Items     []CartLine `json:"items"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CartLine is one server cart row. Product is kept raw because the backend
// has served several product shapes over time.
type CartLine struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Qty       int             `json:"qty"`
	Product   json.RawMessage `json:"product,omitempty"`
}

func (c *Client) GetCart(ctx context.Context) (Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodGet, "/cart/", nil, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}

// UpsertItem sets the absolute quantity of a product and returns the updated cart.
func (c *Client) UpsertItem(ctx context.Context, productID int64, qty int) (Cart, error) {
	in := model.CartLine{ProductID: productID, Qty: qty}

	var out Cart
	if err := c.do(ctx, http.MethodPost, "/cart/items/", in, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}

func (c *Client) DeleteItem(ctx context.Context, lineID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/cart/items/%d/", lineID), nil, nil)
}

// MergeCart adds a batch of guest lines to the server cart and returns the merged cart.
func (c *Client) MergeCart(ctx context.Context, items []model.CartLine) (Cart, error) {
	in := struct {
		Items []model.CartLine `json:"items"`
	}{Items: items}

	var out Cart
	if err := c.do(ctx, http.MethodPost, "/cart/merge/", in, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}
