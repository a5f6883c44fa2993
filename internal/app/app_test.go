package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/config"
	"portal/internal/lib/logger/handlers/slogdiscard"
	"portal/internal/services/session"
)

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	cs := &countingSweeper{}
	s := NewSweeper(slogdiscard.NewDiscardLogger(), cs, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return cs.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_KeepsGoingAfterErrors(t *testing.T) {
	cs := &countingSweeper{err: errors.New("db down")}
	s := NewSweeper(slogdiscard.NewDiscardLogger(), cs, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return cs.calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	cs := &countingSweeper{}
	s := NewSweeper(slogdiscard.NewDiscardLogger(), cs, 0, 0)

	s.Run(context.Background())
	assert.Zero(t, cs.calls.Load())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Env: "local",
		Storage: config.StorageConfig{
			Driver:          config.DriverSQLite,
			Path:            filepath.Join(t.TempDir(), "portal.db"),
			MigrationsTable: "schema_migrations",
		},
		GRPC: config.GRPCConfig{Port: 0, Timeout: time.Second, ServiceToken: "test-service-token"},
		Tokens: config.TokensConfig{
			Secret:     "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			Issuer:     "portal",
			Audience:   "customer-portal",
		},
	}
}

func TestNew_WiresSessionManager(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	storageApp, err := NewStorageApp(ctx, cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storageApp.Stop() })
	assert.Equal(t, config.DriverSQLite, storageApp.Driver())

	application, err := New(slogdiscard.NewDiscardLogger(), cfg, storageApp)
	require.NoError(t, err)
	assert.False(t, application.MetricsApp.Enabled())

	pair, err := application.Sessions.Issue(ctx, session.IssueRequest{SubjectID: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, pair.AccessExpiresIn)
	assert.Equal(t, 24*time.Hour, pair.RefreshExpiresIn)

	_, err = application.Sessions.ValidateAccess(ctx, pair.AccessToken)
	assert.NoError(t, err)
}

func TestNewSessionManager_SweepsWithoutServers(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	storageApp, err := NewStorageApp(ctx, cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storageApp.Stop() })

	sessions := NewSessionManager(slogdiscard.NewDiscardLogger(), cfg.Tokens, storageApp.Storage())

	pair, err := sessions.Issue(ctx, session.IssueRequest{SubjectID: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, pair.AccessExpiresIn)

	n, err := sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewSessionManager_MissingSecretPanics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokens.Secret = " "

	assert.Panics(t, func() {
		NewSessionManager(slogdiscard.NewDiscardLogger(), cfg.Tokens, nil)
	})
}

func TestNew_MissingSecretPanics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokens.Secret = ""

	storageApp, err := NewStorageApp(context.Background(), cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storageApp.Stop() })

	assert.Panics(t, func() { _, _ = New(slogdiscard.NewDiscardLogger(), cfg, storageApp) })
}

func TestNewStorageApp_UnknownDriver(t *testing.T) {
	_, err := NewStorageApp(context.Background(), config.StorageConfig{Driver: "mysql"})
	assert.Error(t, err)
}
