// Package credential persists the session's access/refresh pair.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtroode/storefront-client/internal/logger"
	"github.com/dtroode/storefront-client/internal/model"
)

// CanonicalKey is the only key credentials are written under.
const CanonicalKey = "session:credential"

// Keys used by older clients. They are read when the canonical key is absent
// and removed on Clear, but never written. Order is lookup priority.
var (
	LegacyAccessKeys  = []string{"accessToken", "access_token", "access", "token", "authToken"}
	LegacyRefreshKeys = []string{"refreshToken", "refresh_token", "refresh"}
)

var _ model.CredentialStore = (*Store)(nil)

type Store struct {
	kv        model.KVStore
	inspector model.TokenInspector
	logger    *logger.Logger
}

func NewStore(kv model.KVStore, inspector model.TokenInspector, logger *logger.Logger) *Store {
	return &Store{kv: kv, inspector: inspector, logger: logger}
}

// Read returns the stored pair or model.ErrNotFound.
func (s *Store) Read(ctx context.Context) (model.Credential, error) {
	data, err := s.kv.Get(ctx, CanonicalKey)
	switch {
	case err == nil:
		var c model.Credential
		if err := json.Unmarshal(data, &c); err != nil {
			return model.Credential{}, fmt.Errorf("failed to decode credential: %w", err)
		}
		if c.IsZero() {
			return model.Credential{}, model.ErrNotFound
		}
		return c, nil
	case !errors.Is(err, model.ErrNotFound):
		return model.Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}

	access, err := s.firstLegacy(ctx, LegacyAccessKeys)
	if err != nil {
		return model.Credential{}, err
	}
	refresh, err := s.firstLegacy(ctx, LegacyRefreshKeys)
	if err != nil {
		return model.Credential{}, err
	}

	c := model.Credential{Access: access, Refresh: refresh}
	if c.IsZero() {
		return model.Credential{}, model.ErrNotFound
	}

	s.logger.Debug("Credential store: read legacy credential")
	c.Expiry = s.expiry(c.Access)
	return c, nil
}

// Write replaces the stored pair. An empty refresh keeps the stored one.
func (s *Store) Write(ctx context.Context, c model.Credential) error {
	if c.Refresh == "" {
		prev, err := s.Read(ctx)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		c.Refresh = prev.Refresh
	}
	if c.Expiry.IsZero() {
		c.Expiry = s.expiry(c.Access)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if err := s.kv.Put(ctx, CanonicalKey, data); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Clear removes the canonical key and every legacy alias.
func (s *Store) Clear(ctx context.Context) error {
	keys := make([]string, 0, 1+len(LegacyAccessKeys)+len(LegacyRefreshKeys))
	keys = append(keys, CanonicalKey)
	keys = append(keys, LegacyAccessKeys...)
	keys = append(keys, LegacyRefreshKeys...)

	var errs []error
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) firstLegacy(ctx context.Context, keys []string) (string, error) {
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %q: %w", key, err)
		}
		if v := legacyValue(data); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// legacyValue accepts both raw and JSON-quoted strings.
func legacyValue(data []byte) string {
	var quoted string
	if err := json.Unmarshal(data, &quoted); err == nil {
		return strings.TrimSpace(quoted)
	}
	return strings.TrimSpace(string(data))
}

func (s *Store) expiry(access string) time.Time {
	if access == "" || s.inspector == nil {
		return time.Time{}
	}
	claims, err := s.inspector.Inspect(access)
	if err != nil {
		s.logger.Debug("Credential store: access token has no readable expiry", "error", err)
		return time.Time{}
	}
	return claims.ExpiresAt
}
