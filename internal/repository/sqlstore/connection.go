package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dtroode/storefront-client/database"
)

// Dialect describes a database/sql driver and its placeholder style.
type Dialect struct {
	Driver   string
	Goose    string
	Numbered bool
}

var (
	SQLite   = Dialect{Driver: "sqlite3", Goose: "sqlite3"}
	Postgres = Dialect{Driver: "pgx", Goose: "postgres", Numbered: true}
)

type Connection struct {
	*sql.DB
	dialect Dialect
}

// NewConnection opens the database, checks it is reachable and applies
// migrations.
func NewConnection(ctx context.Context, dialect Dialect, dsn string) (*Connection, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// sqlite3 serializes writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := database.Migrate(ctx, db, dialect.Goose); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Connection{DB: db, dialect: dialect}, nil
}

// WrapConnection uses an already opened handle without migrating it.
func WrapConnection(db *sql.DB, dialect Dialect) *Connection {
	return &Connection{DB: db, dialect: dialect}
}

func (c *Connection) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.DB == nil {
		return fmt.Errorf("database handle is nil")
	}
	return c.DB.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for numbered dialects.
func (c *Connection) rebind(query string) string {
	if !c.dialect.Numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
