package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Product is a catalog entry of the fake storefront.
type Product struct {
	ID    int64
	Title string
	Price string
	Stock int
	Slug  string
	Image string
}

// Order is an order held by the fake storefront.
type Order struct {
	ID          int64
	Status      string
	History     []OrderHistory
	// AllowedNext is reported as allowed_next_statuses on the vendor endpoint.
	AllowedNext []string
}

// OrderHistory is one server-side status history row.
type OrderHistory struct {
	ID        int64
	Status    string
	Note      string
	ChangedAt time.Time
	ChangedBy string
}

type account struct {
	id       int64
	email    string
	password string
	role     string
	staff    bool
}

type cartLine struct {
	id        int64
	productID int64
	qty       int
}

type injected struct {
	status int
	body   string
}

// Storefront is an in-process fake of the storefront REST backend mounted
// under /api. Access credentials are HS256 JWTs; refresh credentials are
// opaque strings.
type Storefront struct {
	*httptest.Server

	secret []byte

	mu            sync.Mutex
	accounts      map[string]*account
	refreshTokens map[string]int64
	generation    int
	products      map[int64]Product
	carts         map[int64][]cartLine
	nextLineID    int64
	orders        map[int64]*Order
	nextHistoryID int64
	calls         map[string]int
	unauthorized  int
	failures      map[string][]injected
	refreshFails  bool
	rotateRefresh bool
	refreshGate   chan struct{}
	validate      func(from, to string) error
}

// NewStorefront starts a fake storefront. Close it with Close.
func NewStorefront() *Storefront {
	s := &Storefront{
		secret:        []byte("storefront-test-secret"),
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]int64),
		products:      make(map[int64]Product),
		carts:         make(map[int64][]cartLine),
		nextLineID:    100,
		orders:        make(map[int64]*Order),
		nextHistoryID: 1000,
		calls:         make(map[string]int),
		failures:      make(map[string][]injected),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// BaseURL is the API root clients should be configured with.
func (s *Storefront) BaseURL() string {
	return s.URL + "/api"
}

// AddUser registers an account that can log in.
func (s *Storefront) AddUser(id int64, email, password string, staff bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{id: id, email: email, password: password, role: "customer", staff: staff}
}

func (s *Storefront) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SetCart replaces a user's server cart with productID→qty lines.
func (s *Storefront) SetCart(userID int64, lines map[int64]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = nil
	for pid, qty := range lines {
		s.nextLineID++
		s.carts[userID] = append(s.carts[userID], cartLine{id: s.nextLineID, productID: pid, qty: qty})
	}
}

// CartQuantities returns a user's server cart as productID→qty.
func (s *Storefront) CartQuantities(userID int64) map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int)
	for _, l := range s.carts[userID] {
		out[l.productID] = l.qty
	}
	return out
}

func (s *Storefront) AddOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	cp.History = append([]OrderHistory(nil), o.History...)
	s.orders[o.ID] = &cp
}

// OrderStatus returns the server-side status of an order.
func (s *Storefront) OrderStatus(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return o.Status
	}
	return ""
}

// ValidateTransitions installs server-side transition validation.
func (s *Storefront) ValidateTransitions(fn func(from, to string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validate = fn
}

// IssueTokens mints a credential pair for a registered account.
func (s *Storefront) IssueTokens(email string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	return s.mintAccessLocked(a, time.Now().Add(time.Hour)), s.mintRefreshLocked(a)
}

// MintExpiredAccess mints an access credential whose exp is in the past.
func (s *Storefront) MintExpiredAccess(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintAccessLocked(s.accounts[email], time.Now().Add(-time.Minute))
}

// ExpireAccess invalidates every access credential issued so far.
func (s *Storefront) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefresh makes the refresh endpoint reject every request.
func (s *Storefront) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = fail
}

// RotateRefresh makes the refresh endpoint return a new refresh credential.
func (s *Storefront) RotateRefresh(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = rotate
}

// HoldRefresh blocks refresh requests until the returned func is called.
func (s *Storefront) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.refreshGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next request to method+path answer status with body.
func (s *Storefront) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], injected{status: status, body: body})
}

// Calls returns how many requests hit method+path (path relative to /api).
func (s *Storefront) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// Unauthorized returns how many protected requests were rejected with 401.
func (s *Storefront) Unauthorized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsStaff    bool   `json:"is_staff"`
	TokenType  string `json:"token_type"`
	Generation int    `json:"gen"`
}

func (s *Storefront) mintAccessLocked(a *account, exp time.Time) string {
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
		UserID:     a.id,
		Email:      a.email,
		Role:       a.role,
		IsStaff:    a.staff,
		TokenType:  "access",
		Generation: s.generation,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Storefront) mintRefreshLocked(a *account) string {
	token := "refresh-" + uuid.NewString()
	s.refreshTokens[token] = a.id
	return token
}

func (s *Storefront) accountByID(id int64) *account {
	for _, a := range s.accounts {
		if a.id == id {
			return a
		}
	}
	return nil
}

func (s *Storefront) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	key := r.Method + " " + path

	s.mu.Lock()
	s.calls[key]++
	if queue := s.failures[key]; len(queue) > 0 {
		f := queue[0]
		s.failures[key] = queue[1:]
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}
	s.mu.Unlock()

	switch {
	case key == "POST /auth/login/":
		s.login(w, r)
	case key == "POST /auth/refresh/":
		s.refresh(w, r)
	case key == "POST /auth/register/":
		s.register(w, r)
	case key == "POST /auth/forgot-password/", key == "POST /auth/reset-password/":
		writeJSON(w, http.StatusOK, map[string]string{"detail": "ok"})
	default:
		userID, ok := s.authenticate(r)
		if !ok {
			s.mu.Lock()
			s.unauthorized++
			s.mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		s.protected(w, r, path, userID)
	}
}

func (s *Storefront) authenticate(r *http.Request) (int64, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return 0, false
	}
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return 0, false
	}
	return claims.UserID, true
}

func (s *Storefront) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Password != in.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string]any{"confirm_password": []string{"Passwords do not match."}})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"email": in.Email})
}

func (s *Storefront) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	a, ok := s.accounts[in.Email]
	if !ok || a.password != in.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	access := s.mintAccessLocked(a, time.Now().Add(time.Hour))
	refresh := s.mintRefreshLocked(a)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access":  access,
		"refresh": refresh,
		"user":    map[string]any{"id": a.id, "email": a.email, "role": a.role, "is_staff": a.staff},
	})
}

func (s *Storefront) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refreshTokens[in.Refresh]
	if s.refreshFails || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	a := s.accountByID(userID)
	out := map[string]string{"access": s.mintAccessLocked(a, time.Now().Add(time.Hour))}
	if s.rotateRefresh {
		delete(s.refreshTokens, in.Refresh)
		out["refresh"] = s.mintRefreshLocked(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Storefront) protected(w http.ResponseWriter, r *http.Request, path string, userID int64) {
	switch {
	case r.Method == http.MethodGet && path == "/auth/me/":
		s.mu.Lock()
		a := s.accountByID(userID)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"id": a.id, "email": a.email, "role": a.role, "is_staff": a.staff})
	case r.Method == http.MethodGet && path == "/cart/":
		s.writeCart(w, userID)
	case r.Method == http.MethodPost && path == "/cart/items/":
		var in struct {
			ProductID int64 `json:"productId"`
			Qty       int   `json:"qty"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.ProductID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "productId required"})
			return
		}
		s.upsertLine(userID, in.ProductID, max(in.Qty, 1), false)
		s.writeCart(w, userID)
	case r.Method == http.MethodPost && path == "/cart/merge/":
		var in struct {
			Items []struct {
				ProductID int64 `json:"productId"`
				Qty       int   `json:"qty"`
			} `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		for _, it := range in.Items {
			if it.ProductID == 0 {
				continue
			}
			s.upsertLine(userID, it.ProductID, max(it.Qty, 1), true)
		}
		s.writeCart(w, userID)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/cart/items/"):
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(path, "/cart/items/"), "/"), 10, 64)
		s.mu.Lock()
		lines := s.carts[userID][:0]
		for _, l := range s.carts[userID] {
			if l.id != id {
				lines = append(lines, l)
			}
		}
		s.carts[userID] = lines
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(path, "/admin/orders/"), strings.HasPrefix(path, "/orders/vendor/orders/"):
		s.order(w, r, path, userID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (s *Storefront) upsertLine(userID, productID int64, qty int, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.carts[userID] {
		if l.productID == productID {
			if add {
				s.carts[userID][i].qty += qty
			} else {
				s.carts[userID][i].qty = qty
			}
			return
		}
	}
	s.nextLineID++
	s.carts[userID] = append(s.carts[userID], cartLine{id: s.nextLineID, productID: productID, qty: qty})
}

func (s *Storefront) writeCart(w http.ResponseWriter, userID int64) {
	s.mu.Lock()
	items := make([]map[string]any, 0, len(s.carts[userID]))
	for _, l := range s.carts[userID] {
		p := s.products[l.productID]
		items = append(items, map[string]any{
			"id":        l.id,
			"productId": l.productID,
			"qty":       l.qty,
			"product": map[string]any{
				"id":          p.ID,
				"name":        p.Title,
				"price":       p.Price,
				"final_price": p.Price,
				"stock":       p.Stock,
				"slug":        p.Slug,
				"images":      []map[string]string{{"image": p.Image}},
			},
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         userID,
		"items":      items,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Storefront) order(w http.ResponseWriter, r *http.Request, path string, userID int64) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "/admin/orders/"), "/orders/vendor/orders/")
	id, err := strconv.ParseInt(strings.Trim(trimmed, "/"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Order not found."})
		return
	}

	if r.Method == http.MethodPatch {
		var in struct {
			Status string `json:"status"`
			Note   string `json:"note"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if s.validate != nil {
			if err := s.validate(o.Status, in.Status); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
				return
			}
		}
		if in.Status != "" && in.Status != o.Status {
			s.nextHistoryID++
			actor := ""
			if a := s.accountByID(userID); a != nil {
				actor = a.email
			}
			o.Status = in.Status
			o.History = append(o.History, OrderHistory{
				ID:        s.nextHistoryID,
				Status:    in.Status,
				Note:      strings.TrimSpace(in.Note),
				ChangedAt: time.Now().UTC(),
				ChangedBy: actor,
			})
		}
	}

	history := make([]map[string]any, 0, len(o.History))
	for _, h := range o.History {
		history = append(history, map[string]any{
			"id":               h.ID,
			"status":           h.Status,
			"note":             h.Note,
			"changed_at":       h.ChangedAt.Format(time.RFC3339Nano),
			"changed_by_email": h.ChangedBy,
		})
	}
	body := map[string]any{
		"id":             o.ID,
		"order_number":   fmt.Sprintf("ORD-%05d", o.ID),
		"status":         o.Status,
		"payment_status": "paid",
		"total":          "100.00",
		"status_history": history,
		"updated_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if o.AllowedNext != nil && strings.HasPrefix(path, "/orders/vendor/orders/") {
		body["allowed_next_statuses"] = o.AllowedNext
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrRejected is a convenience error for ValidateTransitions hooks.
var ErrRejected = errors.New("status change rejected by server")
