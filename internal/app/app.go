package app

import (
	"fmt"
	"log/slog"

	"portal/config"
	grpcapp "portal/internal/app/grpc"
	"portal/internal/lib/jwt"
	"portal/internal/lib/metrics"
	"portal/internal/lib/secret"
	"portal/internal/services/session"
)

type App struct {
	GRPCServer *grpcapp.App
	StorageApp *StorageApp
	MetricsApp *MetricsApp
	Sweeper    *Sweeper
	Sessions   *session.Manager
}

// NewSessionManager builds the token codec and the session manager over store.
// It panics on a missing signing secret so the process stops before it serves.
func NewSessionManager(log *slog.Logger, cfg config.TokensConfig, store session.Store, opts ...session.Option) *session.Manager {
	key := secret.MustNew(cfg.Secret).Key()

	codec := jwt.New(key,
		jwt.WithAccessTTL(cfg.AccessTTL),
		jwt.WithRefreshTTL(cfg.RefreshTTL),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
	)

	return session.New(log, store, codec, opts...)
}

// New wires the session manager and its servers.
func New(log *slog.Logger, cfg *config.Config, storageApp *StorageApp) (*App, error) {
	const op = "app.New"

	m := metrics.New()

	sessions := NewSessionManager(log, cfg.Tokens, storageApp.Storage(), session.WithMetrics(m))

	grpcApp, err := grpcapp.New(log, sessions, cfg.GRPC.Port, cfg.GRPC.Timeout, cfg.GRPC.TrustedPeers, cfg.GRPC.ServiceToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{
		GRPCServer: grpcApp,
		StorageApp: storageApp,
		MetricsApp: NewMetricsApp(log, cfg.Metrics.Addr, m),
		Sweeper:    NewSweeper(log, sessions, cfg.Sweep.Interval, cfg.GRPC.Timeout),
		Sessions:   sessions,
	}, nil
}
