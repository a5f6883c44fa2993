package postgres

import (
	"context"
	"os"
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

// Integration tests run only when PORTAL_DATABASE_URL points at a disposable database.

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("PORTAL_DATABASE_URL")
	if dsn == "" {
		t.Skip("PORTAL_DATABASE_URL is not set; skipping Postgres integration test")
	}

	st, err := New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Migrate(storage.DefaultMigrationsTable))

	return st
}

func newSubject(t *testing.T, st *Storage) string {
	t.Helper()

	subject := "cust-" + uuid.NewString()
	t.Cleanup(func() { _, _ = st.DeleteSubjectSessions(context.Background(), subject) })

	return subject
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

func TestPostgres_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	subject := newSubject(t, st)
	now := time.Now().UTC()

	s := fakeSession(subject, now)
	require.NoError(t, st.CreateSession(ctx, s))

	err := st.CreateSession(ctx, s)
	require.ErrorIs(t, err, storage.ErrSessionExists)

	got, err := st.SessionForAccessCheck(ctx, s.ID, subject, s.AccessTokenHash)
	require.NoError(t, err)
	assert.Equal(t, s.UserAgent, got.UserAgent)
	assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Microsecond)

	_, err = st.SessionBySubject(ctx, s.ID, "someone-else")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestPostgres_UpdateOnRefreshAndTouch(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	subject := newSubject(t, st)
	now := time.Now().UTC()

	s := fakeSession(subject, now)
	s.IPAddress = ""
	require.NoError(t, st.CreateSession(ctx, s))

	later := now.Add(time.Hour)
	newHash := tokenhash.Hash("rotated")
	require.NoError(t, st.UpdateOnRefresh(ctx, s.ID, newHash, later.Add(7*24*time.Hour), later))
	require.NoError(t, st.TouchSession(ctx, s.ID, now))

	got, err := st.SessionBySubject(ctx, s.ID, subject)
	require.NoError(t, err)
	assert.Equal(t, newHash, got.AccessTokenHash)
	assert.Empty(t, got.IPAddress)
	assert.WithinDuration(t, later, got.LastAccessedAt, time.Microsecond)

	err = st.UpdateOnRefresh(ctx, uuid.NewString(), newHash, later, later)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestPostgres_ListDeleteSweep(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	subject := newSubject(t, st)
	now := time.Now().UTC()

	a := fakeSession(subject, now.Add(-time.Hour))
	b := fakeSession(subject, now)
	dead := fakeSession(subject, now.Add(-8*24*time.Hour))
	for _, s := range []models.Session{a, b, dead} {
		require.NoError(t, st.CreateSession(ctx, s))
	}

	active, err := st.ActiveSessions(ctx, subject, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, b.ID, active[0].ID)

	n, err := st.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	n, err = st.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := st.DeleteSession(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = st.DeleteSubjectSessions(ctx, subject)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
