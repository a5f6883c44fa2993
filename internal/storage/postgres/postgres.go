// Package postgres implements the session store on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"portal/internal/domain/models"
	"portal/internal/storage"
	"portal/internal/storage/migrator"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const sessionColumns = `id, subject_id, access_token_hash, ip_address, user_agent, created_at, last_accessed_at, expires_at`

const pingTimeout = 3 * time.Second

type Storage struct {
	pool *pgxpool.Pool
	dsn  string
}

// New opens a pool for dsn and checks that a connection can be acquired.
func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.postgres.New"

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Storage{pool: pool, dsn: dsn}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// Ping acquires and releases one pooled connection.
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()

	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Migrate(migrationsTable string) error {
	const op = "storage.postgres.Migrate"

	err := migrator.RunFS(Migrations, "migrations", migrator.PostgresURL(s.dsn, migrationsTable), migrator.Up)
	if err != nil && !errors.Is(err, migrator.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.postgres.CreateSession"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO portal_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID,
		session.SubjectID,
		session.AccessTokenHash,
		nullIfEmpty(session.IPAddress),
		nullIfEmpty(session.UserAgent),
		session.CreatedAt.UTC(),
		session.LastAccessedAt.UTC(),
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrSessionExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SessionBySubject(ctx context.Context, sessionID, subjectID string) (models.Session, error) {
	const op = "storage.postgres.SessionBySubject"

	return s.querySession(ctx, op, `
		SELECT `+sessionColumns+`
		FROM portal_sessions WHERE id = $1 AND subject_id = $2
	`, sessionID, subjectID)
}

func (s *Storage) SessionForAccessCheck(ctx context.Context, sessionID, subjectID, accessTokenHash string) (models.Session, error) {
	const op = "storage.postgres.SessionForAccessCheck"

	return s.querySession(ctx, op, `
		SELECT `+sessionColumns+`
		FROM portal_sessions WHERE id = $1 AND subject_id = $2 AND access_token_hash = $3
	`, sessionID, subjectID, accessTokenHash)
}

// UpdateOnRefresh swaps the access token hash and expiry in one statement.
func (s *Storage) UpdateOnRefresh(ctx context.Context, sessionID, accessTokenHash string, expiresAt, now time.Time) error {
	const op = "storage.postgres.UpdateOnRefresh"

	tag, err := s.pool.Exec(ctx, `
		UPDATE portal_sessions
		SET access_token_hash = $2,
		    expires_at = $3,
		    last_accessed_at = GREATEST(last_accessed_at, $4)
		WHERE id = $1 AND expires_at > $4
	`, sessionID, accessTokenHash, expiresAt.UTC(), now.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

func (s *Storage) TouchSession(ctx context.Context, sessionID string, now time.Time) error {
	const op = "storage.postgres.TouchSession"

	_, err := s.pool.Exec(ctx, `
		UPDATE portal_sessions
		SET last_accessed_at = GREATEST(last_accessed_at, $2)
		WHERE id = $1
	`, sessionID, now.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	const op = "storage.postgres.DeleteSession"

	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *Storage) DeleteSubjectSessions(ctx context.Context, subjectID string) (int64, error) {
	const op = "storage.postgres.DeleteSubjectSessions"

	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) ActiveSessions(ctx context.Context, subjectID string, now time.Time) ([]models.Session, error) {
	const op = "storage.postgres.ActiveSessions"

	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM portal_sessions
		WHERE subject_id = $1 AND expires_at > $2
		ORDER BY last_accessed_at DESC, created_at DESC
	`, subjectID, now.UTC())
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
	const op = "storage.postgres.SweepExpired"

	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) querySession(ctx context.Context, op, query string, args ...any) (models.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var (
		session models.Session
		ip, ua  *string
	)

	err := row.Scan(
		&session.ID,
		&session.SubjectID,
		&session.AccessTokenHash,
		&ip,
		&ua,
		&session.CreatedAt,
		&session.LastAccessedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		return models.Session{}, err
	}

	if ip != nil {
		session.IPAddress = *ip
	}
	if ua != nil {
		session.UserAgent = *ua
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.LastAccessedAt = session.LastAccessedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()

	return session, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
