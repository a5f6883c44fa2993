// Migrations are embedded and applied with Storage.Migrate, or from disk with:
// go run ./cmd/migrator --storage-path=./storage/portal.db --migrations-path=./internal/storage/sqlite/migrations
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"portal/internal/domain/models"
	"portal/internal/storage"
	"portal/internal/storage/migrator"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const sessionColumns = `id, subject_id, access_token_hash, ip_address, user_agent, created_at, last_accessed_at, expires_at`

type Storage struct {
	db   *sql.DB
	path string
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	dsn := storagePath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db, path: storagePath}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate brings the schema up to date using the embedded migrations.
func (s *Storage) Migrate(migrationsTable string) error {
	const op = "storage.sqlite.Migrate"

	err := migrator.RunFS(Migrations, "migrations", migrator.SQLiteURL(s.path, migrationsTable), migrator.Up)
	if err != nil && !errors.Is(err, migrator.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.sqlite.CreateSession"

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO portal_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		session.ID,
		session.SubjectID,
		session.AccessTokenHash,
		nullIfEmpty(session.IPAddress),
		nullIfEmpty(session.UserAgent),
		toUnix(session.CreatedAt),
		toUnix(session.LastAccessedAt),
		toUnix(session.ExpiresAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%s: %w", op, storage.ErrSessionExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SessionBySubject(ctx context.Context, sessionID, subjectID string) (models.Session, error) {
	const op = "storage.sqlite.SessionBySubject"

	return s.querySession(ctx, op, `
		SELECT `+sessionColumns+`
		FROM portal_sessions WHERE id = ? AND subject_id = ?
	`, sessionID, subjectID)
}

func (s *Storage) SessionForAccessCheck(ctx context.Context, sessionID, subjectID, accessTokenHash string) (models.Session, error) {
	const op = "storage.sqlite.SessionForAccessCheck"

	return s.querySession(ctx, op, `
		SELECT `+sessionColumns+`
		FROM portal_sessions WHERE id = ? AND subject_id = ? AND access_token_hash = ?
	`, sessionID, subjectID, accessTokenHash)
}

// UpdateOnRefresh swaps the access token hash and expiry in one statement.
// An expired or missing row is left untouched and reported as not found.
func (s *Storage) UpdateOnRefresh(ctx context.Context, sessionID, accessTokenHash string, expiresAt, now time.Time) error {
	const op = "storage.sqlite.UpdateOnRefresh"

	stmt, err := s.db.PrepareContext(ctx, `
		UPDATE portal_sessions
		SET access_token_hash = ?,
		    expires_at = ?,
		    last_accessed_at = MAX(last_accessed_at, ?)
		WHERE id = ? AND expires_at > ?
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, accessTokenHash, toUnix(expiresAt), toUnix(now), sessionID, toUnix(now))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

func (s *Storage) TouchSession(ctx context.Context, sessionID string, now time.Time) error {
	const op = "storage.sqlite.TouchSession"

	stmt, err := s.db.PrepareContext(ctx, "UPDATE portal_sessions SET last_accessed_at = MAX(last_accessed_at, ?) WHERE id = ?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, toUnix(now), sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	const op = "storage.sqlite.DeleteSession"

	n, err := s.exec(ctx, "DELETE FROM portal_sessions WHERE id = ?", sessionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (s *Storage) DeleteSubjectSessions(ctx context.Context, subjectID string) (int64, error) {
	const op = "storage.sqlite.DeleteSubjectSessions"

	n, err := s.exec(ctx, "DELETE FROM portal_sessions WHERE subject_id = ?", subjectID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Storage) ActiveSessions(ctx context.Context, subjectID string, now time.Time) ([]models.Session, error) {
	const op = "storage.sqlite.ActiveSessions"

	stmt, err := s.db.PrepareContext(ctx, `
		SELECT `+sessionColumns+`
		FROM portal_sessions
		WHERE subject_id = ? AND expires_at > ?
		ORDER BY last_accessed_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, subjectID, toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

func (s *Storage) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.SweepExpired"

	n, err := s.exec(ctx, "DELETE FROM portal_sessions WHERE expires_at <= ?", toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Storage) querySession(ctx context.Context, op, query string, args ...any) (models.Session, error) {
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	session, err := scanSession(stmt.QueryRowContext(ctx, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.Session, error) {
	var (
		session                              models.Session
		ip, ua                               sql.NullString
		createdAt, lastAccessedAt, expiresAt int64
	)

	err := row.Scan(&session.ID, &session.SubjectID, &session.AccessTokenHash, &ip, &ua, &createdAt, &lastAccessedAt, &expiresAt)
	if err != nil {
		return models.Session{}, err
	}

	session.IPAddress = ip.String
	session.UserAgent = ua.String
	session.CreatedAt = fromUnix(createdAt)
	session.LastAccessedAt = fromUnix(lastAccessedAt)
	session.ExpiresAt = fromUnix(expiresAt)

	return session, nil
}

// Timestamps are stored as UTC unix nanoseconds so SQL comparisons are numeric.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
