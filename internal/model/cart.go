package model

import "github.com/shopspring/decimal"

// CartMode tags which identity a cart mirror belongs to.
type CartMode int

const (
	CartModeGuest CartMode = iota
	CartModeAuthenticated
)

func (m CartMode) String() string {
	if m == CartModeAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// CartItem is one line of the cart. The JSON layout matches the guest cart
// historically written by the web storefront, so old guest carts stay readable.
type CartItem struct {
	ProductID    int64           `json:"productId"`
	Title        string          `json:"title"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"qty"`
	KnownStock   *int            `json:"stock,omitempty"`
	ImageRef     string          `json:"image,omitempty"`
	Slug         string          `json:"slug,omitempty"`
	ServerLineID *int64          `json:"cartItemId,omitempty"`
}

// StockLimit returns the known positive stock, if any.
func (i CartItem) StockLimit() (int, bool) {
	if i.KnownStock == nil || *i.KnownStock <= 0 {
		return 0, false
	}
	return *i.KnownStock, true
}

// LineTotal is unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartMirror is the local representation of the cart, unique by ProductID.
type CartMirror struct {
	Mode  CartMode
	Items []CartItem
}

// CartLine is one {productId, qty} pair sent to the cart endpoints.
type CartLine struct {
	ProductID int64 `json:"productId"`
	Qty       int   `json:"qty"`
}
