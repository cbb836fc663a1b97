package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects either a local sqlite file or a remote libsql database.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// Enabled reports whether a database was configured at all.
func (c Config) Enabled() bool {
	return c.File != "" || c.Url != ""
}

// Open opens the configured database and applies `schema` to it.
func Open(ctx context.Context, config Config, schema string) (*sql.DB, error) {
	var database *sql.DB
	var err error

	switch {
	case config.Url != "":
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		link := config.Url
		if len(values) > 0 {
			link = link + "?" + values.Encode()
		}
		database, err = sql.Open("libsql", link)
	case config.File != "":
		database, err = sql.Open("sqlite", config.File)
	default:
		return nil, fmt.Errorf("neither a database file nor url was specified")
	}
	if err != nil {
		return nil, err
	}

	err = ApplySchema(ctx, database, schema)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// ApplySchema executes the schema, tables that already exist are left alone.
func ApplySchema(ctx context.Context, database *sql.DB, schema string) error {
	_, err := database.ExecContext(ctx, schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// MakeTx is a function that creates a db transaction
type MakeTx = func(ctx context.Context) (tx *sql.Tx, discard, commit func() error, err error)

func NewMakeTx(database *sql.DB) MakeTx {
	return func(ctx context.Context) (*sql.Tx, func() error, func() error, error) {
		sqltx, err := database.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqltx,
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}
