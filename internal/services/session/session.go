package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"portal/internal/domain/models"
	"portal/internal/lib/jwt"
	"portal/internal/lib/logger/sl"
	"portal/internal/lib/metrics"
	"portal/internal/lib/tokenhash"
	"portal/internal/storage"
)

// Manager issues, validates, refreshes and revokes portal sessions.
type Manager struct {
	log     *slog.Logger
	saver   SessionSaver
	sp      SessionProvider
	codec   TokenCodec
	metrics *metrics.Metrics
	now     func() time.Time
}

type SessionSaver interface {
	CreateSession(ctx context.Context, session models.Session) error
	UpdateOnRefresh(ctx context.Context, sessionID, accessTokenHash string, expiresAt, now time.Time) error
	TouchSession(ctx context.Context, sessionID string, now time.Time) error
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	DeleteSubjectSessions(ctx context.Context, subjectID string) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type SessionProvider interface {
	SessionBySubject(ctx context.Context, sessionID, subjectID string) (models.Session, error)
	SessionForAccessCheck(ctx context.Context, sessionID, subjectID, accessTokenHash string) (models.Session, error)
	ActiveSessions(ctx context.Context, subjectID string, now time.Time) ([]models.Session, error)
}

// Store is implemented by every storage driver.
type Store interface {
	SessionSaver
	SessionProvider
}

type TokenCodec interface {
	Sign(subject, email, sessionID string, typ jwt.TokenType) (string, time.Time, error)
	Verify(token string, expected jwt.TokenType) (*jwt.Claims, error)
	TTL(typ jwt.TokenType) time.Duration
}

type Option func(*Manager)

// WithClock sets the authoritative clock for session expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

type IssueRequest struct {
	SubjectID string
	Email     string
	IPAddress string
	UserAgent string
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
	SessionID        string
}

// New returns a new instance of the session manager.
func New(log *slog.Logger, store Store, codec TokenCodec, opts ...Option) *Manager {
	m := &Manager{
		log:   log,
		saver: store,
		sp:    store,
		codec: codec,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Issue creates a session for an already authenticated subject and returns its token pair.
// No tokens are returned unless the session row was stored.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (pair TokenPair, err error) {
	const op = "session.Issue"
	defer func() { m.observe("issue", err) }()

	log := m.log.With(
		slog.String("op", op),
		slog.String("subject_id", req.SubjectID),
	)

	if strings.TrimSpace(req.SubjectID) == "" {
		return TokenPair{}, fmt.Errorf("%s: %w: subject id is required", op, ErrInvalidRequest)
	}

	sessionID := uuid.NewString()

	accessToken, _, err := m.codec.Sign(req.SubjectID, req.Email, sessionID, jwt.Access)
	if err != nil {
		log.Error("failed to sign access token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, _, err := m.codec.Sign(req.SubjectID, req.Email, sessionID, jwt.Refresh)
	if err != nil {
		log.Error("failed to sign refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	now := m.now()
	accessTTL := m.codec.TTL(jwt.Access)

	err = m.saver.CreateSession(ctx, models.Session{
		ID:              sessionID,
		SubjectID:       req.SubjectID,
		AccessTokenHash: tokenhash.Hash(accessToken),
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
		CreatedAt:       now,
		LastAccessedAt:  now,
		ExpiresAt:       now.Add(accessTTL),
	})
	if err != nil {
		log.Error("failed to save session", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	log.Info("session issued", slog.String("session_id", sessionID))

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  accessTTL,
		RefreshExpiresIn: m.codec.TTL(jwt.Refresh),
		SessionID:        sessionID,
	}, nil
}

// ValidateAccess is the gate for every authenticated portal request.
// Returned errors never reveal more to the bearer than KindOf exposes to the caller.
func (m *Manager) ValidateAccess(ctx context.Context, accessToken string) (claims *jwt.Claims, err error) {
	const op = "session.ValidateAccess"
	defer func() { m.observe("validate", err) }()

	log := m.log.With(slog.String("op", op))

	claims, err = m.codec.Verify(accessToken, jwt.Access)
	if err != nil {
		log.Info("access token rejected", slog.String("kind", KindOf(err).String()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(
		slog.String("subject_id", claims.Subject),
		slog.String("session_id", claims.SessionID),
	)

	session, err := m.sp.SessionForAccessCheck(ctx, claims.SessionID, claims.Subject, tokenhash.Hash(accessToken))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Info("no session for access token")
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		log.Error("failed to load session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	if !tokenhash.Equal(accessToken, session.AccessTokenHash) {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}

	now := m.now()
	if session.Expired(now) {
		m.dropExpired(ctx, log, session.ID)
		return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	if err := m.saver.TouchSession(ctx, session.ID, now); err != nil {
		log.Warn("failed to touch session", sl.Err(err))
	}

	return claims, nil
}

// Refresh mints a new access token for the session behind refreshToken.
// The refresh token itself is returned unchanged.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	const op = "session.Refresh"
	defer func() { m.observe("refresh", err) }()

	log := m.log.With(slog.String("op", op))

	claims, err := m.codec.Verify(refreshToken, jwt.Refresh)
	if err != nil {
		log.Info("refresh token rejected", slog.String("kind", KindOf(err).String()))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(
		slog.String("subject_id", claims.Subject),
		slog.String("session_id", claims.SessionID),
	)

	session, err := m.sp.SessionBySubject(ctx, claims.SessionID, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Info("no session for refresh token")
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		log.Error("failed to load session", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	now := m.now()
	if session.Expired(now) {
		m.dropExpired(ctx, log, session.ID)
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	accessToken, _, err := m.codec.Sign(claims.Subject, claims.Email, session.ID, jwt.Access)
	if err != nil {
		log.Error("failed to sign access token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	accessTTL := m.codec.TTL(jwt.Access)

	err = m.saver.UpdateOnRefresh(ctx, session.ID, tokenhash.Hash(accessToken), now.Add(accessTTL), now)
	if err != nil {
		// The row was revoked or swept after the lookup.
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Info("session vanished during refresh")
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		log.Error("failed to update session", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	log.Info("session refreshed")

	var refreshLeft time.Duration
	if claims.ExpiresAt != nil {
		refreshLeft = max(claims.ExpiresAt.Time.Sub(now), 0)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  accessTTL,
		RefreshExpiresIn: refreshLeft,
		SessionID:        session.ID,
	}, nil
}

// Revoke deletes one session. Revoking an unknown id reports false without error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) (bool, error) {
	const op = "session.Revoke"

	log := m.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID),
	)

	if sessionID == "" {
		return false, fmt.Errorf("%s: %w: session id is required", op, ErrInvalidRequest)
	}

	deleted, err := m.saver.DeleteSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to delete session", sl.Err(err))
		return false, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	if deleted {
		m.metrics.AddRevoked(1)
		log.Info("session revoked")
	}

	return deleted, nil
}

// RevokeAll deletes every session owned by subjectID.
func (m *Manager) RevokeAll(ctx context.Context, subjectID string) (int64, error) {
	const op = "session.RevokeAll"

	log := m.log.With(
		slog.String("op", op),
		slog.String("subject_id", subjectID),
	)

	if subjectID == "" {
		return 0, fmt.Errorf("%s: %w: subject id is required", op, ErrInvalidRequest)
	}

	n, err := m.saver.DeleteSubjectSessions(ctx, subjectID)
	if err != nil {
		log.Error("failed to delete sessions", sl.Err(err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	m.metrics.AddRevoked(n)
	log.Info("sessions revoked", slog.Int64("count", n))

	return n, nil
}

// ListSessions returns the live sessions of subjectID, most recently used first.
func (m *Manager) ListSessions(ctx context.Context, subjectID string) ([]models.SessionSummary, error) {
	const op = "session.ListSessions"

	if subjectID == "" {
		return nil, fmt.Errorf("%s: %w: subject id is required", op, ErrInvalidRequest)
	}

	sessions, err := m.sp.ActiveSessions(ctx, subjectID, m.now())
	if err != nil {
		m.log.Error("failed to list sessions",
			slog.String("op", op),
			slog.String("subject_id", subjectID),
			sl.Err(err),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	out := make([]models.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}

	return out, nil
}

// Sweep deletes every expired session and reports how many rows went away.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	const op = "session.Sweep"

	log := m.log.With(slog.String("op", op))

	n, err := m.saver.SweepExpired(ctx, m.now())
	if err != nil {
		log.Error("failed to sweep sessions", sl.Err(err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
	}

	m.metrics.AddSwept(n)
	log.Debug("expired sessions swept", slog.Int64("count", n))

	return n, nil
}

// dropExpired lazily deletes a session found past its expiry.
// A failed delete is left for the sweeper.
func (m *Manager) dropExpired(ctx context.Context, log *slog.Logger, sessionID string) {
	if _, err := m.saver.DeleteSession(ctx, sessionID); err != nil {
		log.Warn("failed to delete expired session", sl.Err(err))
		return
	}

	log.Info("expired session deleted")
}

func (m *Manager) observe(operation string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.metrics.Observe(operation, outcome)
}
