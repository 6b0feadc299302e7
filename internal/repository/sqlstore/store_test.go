package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/model"
)

func newMockRepository(t *testing.T, dialect Dialect) (*StateRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewStateRepository(WrapConnection(db, dialect), "default")
	repo.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return repo, mock
}

func TestConnection_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{
			name:    "sqlite keeps question marks",
			dialect: SQLite,
			query:   "SELECT a FROM t WHERE x = ? AND y = ?",
			want:    "SELECT a FROM t WHERE x = ? AND y = ?",
		},
		{
			name:    "postgres numbers placeholders",
			dialect: Postgres,
			query:   "SELECT a FROM t WHERE x = ? AND y = ?",
			want:    "SELECT a FROM t WHERE x = $1 AND y = $2",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &Connection{dialect: tt.dialect}
			assert.Equal(t, tt.want, c.rebind(tt.query))
		})
	}
}

func TestStateRepository_Get(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT state_value FROM client_state WHERE namespace = $1 AND state_key = $2`)

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    []byte
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).
					WithArgs("default", "cart:guest").
					WillReturnRows(sqlmock.NewRows([]string{"state_value"}).AddRow(`[{"productId":1}]`))
			},
			want: []byte(`[{"productId":1}]`),
		},
		{
			name: "missing row",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).
					WithArgs("default", "cart:guest").
					WillReturnRows(sqlmock.NewRows([]string{"state_value"}))
			},
			wantErr: model.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t, Postgres)
			tt.setup(mock)

			got, err := repo.Get(context.Background(), "cart:guest")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("driver error", func(t *testing.T) {
		repo, mock := newMockRepository(t, Postgres)
		mock.ExpectQuery(query).WillReturnError(errors.New("conn reset"))

		_, err := repo.Get(context.Background(), "cart:guest")
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrNotFound)
		assert.Contains(t, err.Error(), "failed to select state")
	})
}

func TestStateRepository_Put(t *testing.T) {
	repo, mock := newMockRepository(t, SQLite)

	mock.ExpectExec(`(?s)INSERT INTO client_state .*VALUES \(\?, \?, \?, \?\)\s+ON CONFLICT \(namespace, state_key\) DO UPDATE`).
		WithArgs("default", "session:credential", `{"access":"a"}`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Put(context.Background(), "session:credential", []byte(`{"access":"a"}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_PutError(t *testing.T) {
	repo, mock := newMockRepository(t, SQLite)
	mock.ExpectExec(`INSERT INTO client_state`).WillReturnError(errors.New("disk full"))

	err := repo.Put(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert state")
}

func TestStateRepository_Delete(t *testing.T) {
	repo, mock := newMockRepository(t, Postgres)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM client_state WHERE namespace = $1 AND state_key = $2`)).
		WithArgs("default", "cart:guest").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "cart:guest"))
	require.NoError(t, mock.ExpectationsWereMet())
}
