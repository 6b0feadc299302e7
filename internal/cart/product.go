package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dtroode/storefront-client/internal/model"
)

// Product is a product record in any of the shapes the backend has served.
type Product map[string]any

// Ordered aliases per logical field; the first present, non-empty one wins.
var (
	idKeys    = []string{"id", "productId", "product_id"}
	titleKeys = []string{"title", "name"}
	priceKeys = []string{"final_price", "finalPrice", "price"}
	stockKeys = []string{"stock", "quantity_available"}
	imageKeys = []string{"image", "thumbnail"}
)

// DecodeProduct parses a raw JSON product keeping numbers exact.
func DecodeProduct(raw json.RawMessage) (Product, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return Product{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p Product
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return p, nil
}

// NormalizeProduct maps a product onto a cart item with quantity 1.
func NormalizeProduct(p Product) (model.CartItem, error) {
	id, ok := firstInt(p, idKeys)
	if !ok || id <= 0 {
		return model.CartItem{}, model.ErrInvalidProduct
	}

	item := model.CartItem{
		ProductID: id,
		Title:     firstString(p, titleKeys),
		UnitPrice: firstDecimal(p, priceKeys),
		Quantity:  1,
		ImageRef:  productImage(p),
		Slug:      firstString(p, []string{"slug"}),
	}
	if stock, ok := firstInt(p, stockKeys); ok {
		s := int(stock)
		item.KnownStock = &s
	}
	return item, nil
}

// productImage tries images[0].image, images[0], then the flat keys.
func productImage(p Product) string {
	if images, ok := p["images"].([]any); ok && len(images) > 0 {
		switch first := images[0].(type) {
		case map[string]any:
			if s, ok := first["image"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case string:
			if strings.TrimSpace(first) != "" {
				return strings.TrimSpace(first)
			}
		}
	}
	return firstString(p, imageKeys)
}

func firstString(p Product, keys []string) string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstInt(p Product, keys []string) (int64, bool) {
	for _, k := range keys {
		if n, ok := toInt(p[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func firstDecimal(p Product, keys []string) decimal.Decimal {
	for _, k := range keys {
		if d, ok := toDecimal(p[k]); ok {
			return d
		}
	}
	return decimal.Zero
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		if strings.TrimSpace(n) == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
