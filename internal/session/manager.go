// Package session attaches credentials to outgoing storefront requests and
// recovers from rejected access credentials with a single shared refresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/storefront-client/internal/api"
	"github.com/dtroode/storefront-client/internal/logger"
	"github.com/dtroode/storefront-client/internal/model"
)

// HeaderRequestID correlates client requests with server logs.
const HeaderRequestID = "X-Request-ID"

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultMaxWaiters     = 64
)

var errNoRefresh = errors.New("no refresh credential stored")

// Options bound the refresh coordination. RequestTimeout bounds the login
// and refresh exchanges; zero means no client-side limit.
type Options struct {
	RefreshTimeout time.Duration
	MaxWaiters     int
	RequestTimeout time.Duration
}

type result struct {
	access string
	err    error
}

type waiter struct {
	done chan result
}

// Manager is an http.RoundTripper. Protected requests carry the stored access
// credential; a 401 starts at most one refresh at a time and every request
// that failed meanwhile waits in FIFO order for its outcome. Each request is
// retried at most once.
type Manager struct {
	base   http.RoundTripper
	creds  model.CredentialStore
	auth   *api.Client
	logger *logger.Logger
	now    func() time.Time

	refreshTimeout time.Duration
	maxWaiters     int

	mu         sync.Mutex
	refreshing bool
	waiters    []*waiter

	obsMu     sync.Mutex
	observers map[uint64]model.SessionObserver
	nextObs   uint64
}

var _ http.RoundTripper = (*Manager)(nil)

func NewManager(baseURL string, base http.RoundTripper, creds model.CredentialStore, opts Options, logger *logger.Logger) *Manager {
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.MaxWaiters <= 0 {
		opts.MaxWaiters = defaultMaxWaiters
	}

	m := &Manager{
		base:           base,
		creds:          creds,
		logger:         logger,
		now:            time.Now,
		refreshTimeout: opts.RefreshTimeout,
		maxWaiters:     opts.MaxWaiters,
		observers:      make(map[uint64]model.SessionObserver),
	}
	// Auth endpoints are public, so routing them through the manager only
	// adds the request id.
	m.auth = api.NewClient(baseURL, &http.Client{Transport: m, Timeout: opts.RequestTimeout})
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}

	if api.IsPublicPath(req.URL.Path) {
		req.Header.Del("Authorization")
		return m.base.RoundTrip(req)
	}

	ctx := req.Context()
	stored, err := m.read(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	resp, err := m.send(req, stored.Access)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		m.logger.Warn("Session manager: request body cannot be replayed, not retrying", "path", req.URL.Path)
		return resp, nil
	}

	access, err := m.recover(ctx, stored.Access)
	discard(resp)
	if err != nil {
		return nil, err
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	// A second 401 is returned as is.
	return m.send(retry, access)
}

// Subscribe registers an observer of session events. Events emitted after the
// returned func is called do not reach the observer.
func (m *Manager) Subscribe(fn model.SessionObserver) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

// Login exchanges email and password for a credential pair and stores it.
func (m *Manager) Login(ctx context.Context, email, password string) (model.Account, error) {
	pair, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return model.Account{}, err
	}
	if pair.Access == "" {
		return model.Account{}, fmt.Errorf("failed to login: response has no access credential")
	}

	if err := m.creds.Write(ctx, model.Credential{Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return model.Account{}, fmt.Errorf("failed to store credential: %w", err)
	}

	m.logger.Info("Session manager: logged in", "email", email)
	m.emit(model.EventLoggedIn)

	if pair.User != nil {
		return *pair.User, nil
	}
	return model.Account{Email: email}, nil
}

// Logout forgets the stored credential.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.creds.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	m.logger.Info("Session manager: logged out")
	m.emit(model.EventLoggedOut)
	return nil
}

// Credential returns the stored pair or model.ErrNotFound.
func (m *Manager) Credential(ctx context.Context) (model.Credential, error) {
	return m.creds.Read(ctx)
}

func (m *Manager) read(ctx context.Context) (model.Credential, error) {
	c, err := m.creds.Read(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	return c, nil
}

func (m *Manager) send(req *http.Request, access string) (*http.Response, error) {
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	} else {
		req.Header.Del("Authorization")
	}
	return m.base.RoundTrip(req)
}

// recover returns an access credential to retry with after used was rejected.
func (m *Manager) recover(ctx context.Context, used string) (string, error) {
	m.mu.Lock()

	stored, err := m.read(ctx)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	if m.refreshing {
		if len(m.waiters) >= m.maxWaiters {
			m.mu.Unlock()
			return "", model.ErrWaiterQueueFull
		}
		w := &waiter{done: make(chan result, 1)}
		m.waiters = append(m.waiters, w)
		m.mu.Unlock()

		select {
		case r := <-w.done:
			return r.access, r.err
		case <-ctx.Done():
			m.dropWaiter(w)
			return "", ctx.Err()
		}
	}

	if stored.Access != "" && stored.Access != used {
		m.mu.Unlock()
		m.logger.Debug("Session manager: credential already rotated, retrying with stored access")
		return stored.Access, nil
	}

	m.refreshing = true
	m.mu.Unlock()

	access, err := m.refresh(ctx, stored)
	m.settle(result{access: access, err: err})
	return access, err
}

func (m *Manager) refresh(ctx context.Context, stored model.Credential) (string, error) {
	// The refresh outlives the triggering request; waiters depend on it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	m.logger.Debug("Session manager: refreshing access credential")

	access, err := m.exchange(ctx, stored.Refresh)
	if err == nil {
		return access, nil
	}

	m.logger.Warn("Session manager: refresh failed, re-authentication required", "error", err)
	if clearErr := m.creds.Clear(ctx); clearErr != nil {
		m.logger.Error("Session manager: failed to clear credential", "error", clearErr)
	}
	if !stored.IsZero() {
		m.emit(model.EventExpired)
	}
	return "", fmt.Errorf("%w: %w", model.ErrRefreshFailed, err)
}

func (m *Manager) exchange(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		return "", errNoRefresh
	}

	pair, err := m.auth.Refresh(ctx, refresh)
	if err != nil {
		return "", err
	}
	if pair.Access == "" {
		return "", errors.New("refresh response has no access credential")
	}

	if err := m.creds.Write(ctx, model.Credential{Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return "", fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	return pair.Access, nil
}

// settle ends the refresh episode and resolves every waiter in arrival order.
func (m *Manager) settle(r result) {
	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.mu.Unlock()

	for _, w := range waiters {
		w.done <- r
	}
}

func (m *Manager) dropWaiter(target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

func (m *Manager) emit(kind model.SessionEventKind) {
	event := model.SessionEvent{Kind: kind, At: m.now()}

	m.obsMu.Lock()
	observers := make([]model.SessionObserver, 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range observers {
		fn(event)
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody == nil {
		return retry, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to replay request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
