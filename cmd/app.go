package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/storefront-client/internal/api"
	"github.com/dtroode/storefront-client/internal/cart"
	"github.com/dtroode/storefront-client/internal/config"
	"github.com/dtroode/storefront-client/internal/credential"
	"github.com/dtroode/storefront-client/internal/logger"
	"github.com/dtroode/storefront-client/internal/model"
	"github.com/dtroode/storefront-client/internal/order"
	"github.com/dtroode/storefront-client/internal/repository/sqlstore"
	"github.com/dtroode/storefront-client/internal/session"
	"github.com/dtroode/storefront-client/internal/storage/memory"
	storage "github.com/dtroode/storefront-client/internal/storage/minio"
	"github.com/dtroode/storefront-client/internal/token"
	"github.com/dtroode/storefront-client/internal/transport"
)

var errNotLoggedIn = errors.New("not logged in")

// app holds the wired client components for one command invocation.
type app struct {
	logger    *logger.Logger
	inspector model.TokenInspector
	creds     *credential.Store
	manager   *session.Manager
	client    *api.Client
	cart      *cart.Engine
	orders    *order.Service

	unsubscribe func()
	closers     []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*app, error) {
	a := &app{logger: logger}

	kv, err := a.openState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt, err := transport.New(cfg.HTTP.CAFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	rt = transport.NewLogging(rt, logger)

	a.inspector = token.NewJWT()
	a.creds = credential.NewStore(kv, a.inspector, logger)
	a.manager = session.NewManager(cfg.API.BaseURL, rt, a.creds, session.Options{
		RefreshTimeout: cfg.Session.RefreshTimeout,
		MaxWaiters:     cfg.Session.MaxWaiters,
		RequestTimeout: cfg.HTTP.Timeout,
	}, logger)
	a.client = api.NewClient(cfg.API.BaseURL, &http.Client{Transport: a.manager, Timeout: cfg.HTTP.Timeout})

	a.cart = cart.NewEngine(a.client, cart.NewMirrorStore(kv), a.creds, a.inspector, logger)
	a.unsubscribe = a.manager.Subscribe(a.cart.Observe(ctx))
	a.orders = order.NewService(a.client, logger)

	return a, nil
}

func (a *app) openState(ctx context.Context, cfg *config.Config) (model.KVStore, error) {
	switch cfg.State.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil
	case config.BackendSQLite, config.BackendPostgres:
		dialect, dsn := sqlstore.SQLite, cfg.SQLite.Path
		if cfg.State.Backend == config.BackendPostgres {
			dialect, dsn = sqlstore.Postgres, cfg.Database.DSN
		}
		conn, err := sqlstore.NewConnection(ctx, dialect, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state storage: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return sqlstore.NewStateRepository(conn, cfg.State.Namespace), nil
	case config.BackendMinio:
		client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
			Secure: cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		store, err := storage.NewStore(ctx, client, cfg.Storage.Bucket, path.Join(cfg.Storage.Prefix, cfg.State.Namespace))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.State.Backend)
	}
}

// claims returns the identity of the stored credential.
func (a *app) claims(ctx context.Context) (model.Claims, error) {
	cred, err := a.creds.Read(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return model.Claims{}, errNotLoggedIn
	}
	if err != nil {
		return model.Claims{}, err
	}
	return a.inspector.Inspect(cred.Access)
}

func (a *app) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("failed to close state storage", "error", err)
		}
	}
}
