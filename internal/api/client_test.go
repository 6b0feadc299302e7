package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/model"
	"github.com/dtroode/storefront-client/internal/testutil"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_NetworkError(t *testing.T) {
	c := NewClient("http://storefront.invalid/api", doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	_, err := c.GetCart(context.Background())
	require.ErrorIs(t, err, model.ErrNetwork)

	var nerr *model.NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "GET /cart/", nerr.Op)
}

func TestClient_RefreshFailurePassesThrough(t *testing.T) {
	c := NewClient("http://storefront.invalid/api", doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, model.ErrRefreshFailed
	}))

	_, err := c.GetCart(context.Background())
	require.ErrorIs(t, err, model.ErrRefreshFailed)
	assert.NotErrorIs(t, err, model.ErrNetwork)
}

func TestClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"items":[]}` + strings.Repeat(" ", 64)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	c.MaxResponseBodyBytes = 16

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestClient_RequestShape(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"status":"confirmed","status_history":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", srv.Client())
	o, err := c.UpdateOrderStatus(context.Background(), ScopeVendor, 7, "confirmed", "")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/orders/vendor/orders/7/", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"status":"confirmed","note":""}`, gotBody)
	assert.Equal(t, "confirmed", o.Status)
}

func TestClient_AgainstStorefront(t *testing.T) {
	sf := testutil.NewStorefront()
	defer sf.Close()
	sf.AddUser(1, "ann@example.com", "secret1", false)
	sf.AddProduct(testutil.Product{ID: 10, Title: "Mug", Price: "12.50", Stock: 5})

	ctx := context.Background()

	t.Run("login with bad password", func(t *testing.T) {
		c := NewClient(sf.BaseURL(), nil)
		_, err := c.Login(ctx, "ann@example.com", "nope")
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, http.StatusUnauthorized, verr.Status)
	})

	t.Run("protected call without bearer", func(t *testing.T) {
		c := NewClient(sf.BaseURL(), nil)
		_, err := c.GetCart(ctx)
		require.ErrorIs(t, err, model.ErrAuthExpired)
	})

	t.Run("cart round trip", func(t *testing.T) {
		access, _ := sf.IssueTokens("ann@example.com")
		c := NewClient(sf.BaseURL(), bearerDoer(access))

		cart, err := c.UpsertItem(ctx, 10, 2)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(10), cart.Items[0].ProductID)
		assert.Equal(t, 2, cart.Items[0].Qty)

		merged, err := c.MergeCart(ctx, []model.CartLine{{ProductID: 10, Qty: 1}})
		require.NoError(t, err)
		assert.Equal(t, 3, merged.Items[0].Qty)

		require.NoError(t, c.DeleteItem(ctx, merged.Items[0].ID))
		empty, err := c.GetCart(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty.Items)
	})

	t.Run("me", func(t *testing.T) {
		access, _ := sf.IssueTokens("ann@example.com")
		c := NewClient(sf.BaseURL(), bearerDoer(access))

		me, err := c.Me(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", me.Email)
		assert.Equal(t, int64(1), me.ID)
	})

	t.Run("public account flows", func(t *testing.T) {
		c := NewClient(sf.BaseURL(), nil)

		account, err := c.Register(ctx, model.Registration{Email: "new@example.com", Password: "pw", ConfirmPassword: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", account.Email)

		msg, err := c.ForgotPassword(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, "ok", msg)

		msg, err = c.ResetPassword(ctx, model.PasswordReset{UID: "MQ", Token: "t", NewPassword: "n", ConfirmPassword: "n"})
		require.NoError(t, err)
		assert.Equal(t, "ok", msg)

		assert.Equal(t, 1, sf.Calls(http.MethodPost, PathRegister))
	})
}

func bearerDoer(access string) HTTPDoer {
	return doerFunc(func(r *http.Request) (*http.Response, error) {
		r.Header.Set("Authorization", "Bearer "+access)
		return http.DefaultClient.Do(r)
	})
}
