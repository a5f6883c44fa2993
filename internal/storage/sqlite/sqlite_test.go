package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/domain/models"
	"portal/internal/lib/tokenhash"
	"portal/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Migrate(storage.DefaultMigrationsTable))

	return st
}

func fakeSession(subjectID string, now time.Time) models.Session {
	return models.Session{
		ID:              uuid.NewString(),
		SubjectID:       subjectID,
		AccessTokenHash: tokenhash.Hash(gofakeit.UUID()),
		IPAddress:       gofakeit.IPv4Address(),
		UserAgent:       gofakeit.UserAgent(),
		CreatedAt:       now,
		LastAccessedAt:  now,
		ExpiresAt:       now.Add(7 * 24 * time.Hour),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := newTestStorage(t)

	require.NoError(t, st.Migrate(storage.DefaultMigrationsTable))
}

func TestCreateSession_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	s := fakeSession("cust-1", now)
	require.NoError(t, st.CreateSession(ctx, s))

	got, err := st.SessionBySubject(ctx, s.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.AccessTokenHash, got.AccessTokenHash)
	assert.Equal(t, s.IPAddress, got.IPAddress)
	assert.Equal(t, s.UserAgent, got.UserAgent)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateSession_OptionalMetadata(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)

	s := fakeSession("cust-1", time.Now())
	s.IPAddress, s.UserAgent = "", ""
	require.NoError(t, st.CreateSession(ctx, s))

	got, err := st.SessionBySubject(ctx, s.ID, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, got.IPAddress)
	assert.Empty(t, got.UserAgent)
}

func TestCreateSession_Conflict(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)

	s := fakeSession("cust-1", time.Now())
	require.NoError(t, st.CreateSession(ctx, s))

	dup := fakeSession("cust-2", time.Now())
	dup.ID = s.ID
	err := st.CreateSession(ctx, dup)
	require.ErrorIs(t, err, storage.ErrSessionExists)

	got, err := st.SessionBySubject(ctx, s.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, s.AccessTokenHash, got.AccessTokenHash, "original row must not be overwritten")
}

func TestSessionBySubject_SubjectMismatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)

	s := fakeSession("cust-1", time.Now())
	require.NoError(t, st.CreateSession(ctx, s))

	_, err := st.SessionBySubject(ctx, s.ID, "cust-2")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestSessionForAccessCheck(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)

	s := fakeSession("cust-1", time.Now())
	require.NoError(t, st.CreateSession(ctx, s))

	_, err := st.SessionForAccessCheck(ctx, s.ID, "cust-1", s.AccessTokenHash)
	require.NoError(t, err)

	_, err = st.SessionForAccessCheck(ctx, s.ID, "cust-1", tokenhash.Hash("other"))
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	_, err = st.SessionForAccessCheck(ctx, s.ID, "cust-2", s.AccessTokenHash)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestUpdateOnRefresh(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	s := fakeSession("cust-1", now)
	require.NoError(t, st.CreateSession(ctx, s))

	later := now.Add(time.Hour)
	newHash := tokenhash.Hash("new-access")
	newExpiry := later.Add(7 * 24 * time.Hour)
	require.NoError(t, st.UpdateOnRefresh(ctx, s.ID, newHash, newExpiry, later))

	got, err := st.SessionBySubject(ctx, s.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, newHash, got.AccessTokenHash)
	assert.True(t, newExpiry.Equal(got.ExpiresAt))
	assert.True(t, later.Equal(got.LastAccessedAt))
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, s.IPAddress, got.IPAddress)
}

func TestUpdateOnRefresh_MissingOrExpired(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	err := st.UpdateOnRefresh(ctx, uuid.NewString(), "h", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	s := fakeSession("cust-1", now)
	s.ExpiresAt = now
	require.NoError(t, st.CreateSession(ctx, s))

	err = st.UpdateOnRefresh(ctx, s.ID, "h", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestTouchSession_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	s := fakeSession("cust-1", now)
	require.NoError(t, st.CreateSession(ctx, s))

	later := now.Add(time.Minute)
	require.NoError(t, st.TouchSession(ctx, s.ID, later))
	require.NoError(t, st.TouchSession(ctx, s.ID, now))

	got, err := st.SessionBySubject(ctx, s.ID, "cust-1")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastAccessedAt))
}

func TestDeleteSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)

	s := fakeSession("cust-1", time.Now())
	require.NoError(t, st.CreateSession(ctx, s))

	ok, err := st.DeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.DeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteSubjectSessions_Isolation(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.CreateSession(ctx, fakeSession("cust-1", now)))
	}
	other := fakeSession("cust-2", now)
	require.NoError(t, st.CreateSession(ctx, other))

	n, err := st.DeleteSubjectSessions(ctx, "cust-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = st.SessionBySubject(ctx, other.ID, "cust-2")
	assert.NoError(t, err)
}

func TestActiveSessions_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	older := fakeSession("cust-1", now.Add(-2*time.Hour))
	newer := fakeSession("cust-1", now.Add(-time.Hour))
	expired := fakeSession("cust-1", now.Add(-8*24*time.Hour))
	foreign := fakeSession("cust-2", now)
	for _, s := range []models.Session{older, newer, expired, foreign} {
		require.NoError(t, st.CreateSession(ctx, s))
	}

	got, err := st.ActiveSessions(ctx, "cust-1", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)

	require.NoError(t, st.TouchSession(ctx, older.ID, now))
	got, err = st.ActiveSessions(ctx, "cust-1", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	now := time.Now().UTC()

	live := fakeSession("cust-1", now)
	boundary := fakeSession("cust-1", now)
	boundary.ExpiresAt = now
	stale := fakeSession("cust-2", now.Add(-30*24*time.Hour))
	for _, s := range []models.Session{live, boundary, stale} {
		require.NoError(t, st.CreateSession(ctx, s))
	}

	n, err := st.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = st.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = st.SessionBySubject(ctx, live.ID, "cust-1")
	assert.NoError(t, err)
}
