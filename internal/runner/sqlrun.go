package runner

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// runSQL executes the snapshot's query against the inlined connection target.
// A query error is a run failure (exit 1), not a launch error: the statement
// ran against a reachable contract and lost.
func runSQL(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	driver, dsn := dsnFor(&snap.Meta)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return store.CommandRunOutput{}, fmt.Errorf("%w: open %s: %v", store.ErrExecution, driver, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	res, err := db.ExecContext(ctx, snap.Meta.Query)
	if err != nil {
		msg := err.Error()
		return store.CommandRunOutput{ExitCode: 1, ErrorOutput: &msg}, nil
	}
	n, _ := res.RowsAffected()
	summary := fmt.Sprintf("rows affected: %d", n)
	return store.CommandRunOutput{Output: &summary}, nil
}

// dsnFor builds the driver DSN. PasswordSecret names an environment variable
// holding the password; the password itself is never stored in a snapshot.
func dsnFor(m *store.SnapshotMeta) (driver, dsn string) {
	password := os.Getenv(m.PasswordSecret)
	if m.Type == store.RunnerMySQL {
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			m.Username, password, m.Host, m.Port, m.Database)
	}
	return "pgx", fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(m.Username), url.QueryEscape(password), m.Host, m.Port, m.Database)
}
