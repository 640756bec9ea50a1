// Package sqlite persists the signed-in session between runs. Board data is
// never stored here; the only durable state is the credential record needed
// to restore a session without a fresh sign-in.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ycnlabs/prospect/internal/auth"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// sessionRowID pins the store to a single session record.
const sessionRowID = 1

// Store represents the on-disk session store.
type Store struct {
	db *sql.DB
}

// Open opens the store at path, creating the file and schema as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the session schema.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credential_sessions (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			tenant_id TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// SaveSession upserts the single session record.
func (s *Store) SaveSession(ctx context.Context, session auth.Session) error {
	if strings.TrimSpace(session.RefreshToken) == "" {
		return errors.New("session refresh token is required")
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credential_sessions (id, username, display_name, tenant_id, refresh_token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			tenant_id = excluded.tenant_id,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at;`,
		sessionRowID,
		session.Username,
		session.DisplayName,
		session.TenantID,
		session.RefreshToken,
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, reporting whether one exists.
func (s *Store) LoadSession(ctx context.Context) (auth.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, display_name, tenant_id, refresh_token, updated_at
		FROM credential_sessions WHERE id = ?;`, sessionRowID)

	var session auth.Session
	var updatedAt string
	err := row.Scan(&session.Username, &session.DisplayName, &session.TenantID, &session.RefreshToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, false, nil
	}
	if err != nil {
		return auth.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		session.UpdatedAt = ts
	}
	return session, true, nil
}

// ClearSession removes the stored session. Clearing an empty store is not an
// error.
func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credential_sessions WHERE id = ?;`, sessionRowID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
