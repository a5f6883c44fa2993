package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"portal/internal/lib/metrics"
)

// MetricsApp serves /metrics. Its zero addr means disabled.
type MetricsApp struct {
	log    *slog.Logger
	addr   string
	server *http.Server
}

func NewMetricsApp(log *slog.Logger, addr string, m *metrics.Metrics) *MetricsApp {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return &MetricsApp{
		log:  log,
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (a *MetricsApp) Enabled() bool {
	return a.addr != ""
}

func (a *MetricsApp) Run() error {
	const op = "app.MetricsApp.Run"

	if !a.Enabled() {
		return nil
	}

	l, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("metrics server started", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *MetricsApp) Stop(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	return a.server.Shutdown(ctx)
}
