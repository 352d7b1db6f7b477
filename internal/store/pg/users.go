package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

const userColumns = "id, username, password_hash, role, created_at"

func scanUserRow(row rowScanner) (*store.User, error) {
	var u store.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := store.ParseUserRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

// CreateUser inserts an operator account. The username is unique.
func (s *PGStore) CreateUser(ctx context.Context, username, passwordHash string, role store.UserRole) (*store.User, error) {
	if username == "" || passwordHash == "" {
		return nil, fmt.Errorf("%w: username and password are required", store.ErrInvalidInput)
	}
	if _, err := store.ParseUserRole(string(role)); err != nil {
		return nil, err
	}
	id := newRowID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role) VALUES ($1, $2, $3, $4)`,
		id, username, passwordHash, string(role))
	if err != nil {
		return nil, dbErr(err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *PGStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", store.ErrNotFound, username)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return u, nil
}

func (s *PGStore) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return u, nil
}

func (s *PGStore) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var users []store.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, dbErr(err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *PGStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *PGStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if passwordHash == "" {
		return fmt.Errorf("%w: password hash is required", store.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *PGStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, dbErr(err)
	}
	return n, nil
}
