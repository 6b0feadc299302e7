package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/storefront-client/internal/model"
)

var _ model.KVStore = (*StateRepository)(nil)

// StateRepository keeps client state rows scoped by namespace.
type StateRepository struct {
	db        *Connection
	namespace string
	now       func() time.Time
}

func NewStateRepository(db *Connection, namespace string) *StateRepository {
	return &StateRepository{
		db:        db,
		namespace: namespace,
		now:       time.Now,
	}
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT state_value FROM client_state WHERE namespace = ? AND state_key = ?`

	var value string
	err := r.db.QueryRowContext(ctx, r.db.rebind(query), r.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select state: %w", err)
	}

	return []byte(value), nil
}

func (r *StateRepository) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO client_state (namespace, state_key, state_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, state_key) DO UPDATE
		SET state_value = excluded.state_value, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, r.db.rebind(query), r.namespace, key, string(value), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}

	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM client_state WHERE namespace = ? AND state_key = ?`

	_, err := r.db.ExecContext(ctx, r.db.rebind(query), r.namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}

	return nil
}
