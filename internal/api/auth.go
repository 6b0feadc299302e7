package api

import (
	"context"
	"net/http"

	"github.com/dtroode/storefront-client/internal/model"
)

// TokenPair is the body of the login and refresh endpoints.
type TokenPair struct {
	Access  string         `json:"access"`
	Refresh string         `json:"refresh,omitempty"`
	User    *model.Account `json:"user,omitempty"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	in := map[string]string{"email": email, "password": password}

	var out TokenPair
	if err := c.do(ctx, http.MethodPost, PathLogin, in, &out); err != nil {
		return TokenPair{}, err
	}
	return out, nil
}

// Refresh exchanges a refresh credential for a new access credential. The
// returned refresh is empty unless the backend rotates it.
func (c *Client) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	in := map[string]string{"refresh": refresh}

	var out TokenPair
	if err := c.do(ctx, http.MethodPost, PathRefresh, in, &out); err != nil {
		return TokenPair{}, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, form model.Registration) (model.Account, error) {
	var out model.Account
	if err := c.do(ctx, http.MethodPost, PathRegister, form, &out); err != nil {
		return model.Account{}, err
	}
	return out, nil
}

// ForgotPassword requests a reset link and returns the server's message.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out detailResponse
	if err := c.do(ctx, http.MethodPost, PathForgotPassword, map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.Detail, nil
}

func (c *Client) ResetPassword(ctx context.Context, form model.PasswordReset) (string, error) {
	var out detailResponse
	if err := c.do(ctx, http.MethodPost, PathResetPassword, form, &out); err != nil {
		return "", err
	}
	return out.Detail, nil
}

// Me returns the account the current access credential belongs to.
func (c *Client) Me(ctx context.Context) (model.Account, error) {
	var out model.Account
	if err := c.do(ctx, http.MethodGet, "/auth/me/", nil, &out); err != nil {
		return model.Account{}, err
	}
	return out, nil
}
