package grpcapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/realip"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	sessiongrpc "portal/internal/grpc/session"
	"portal/internal/interceptors"
)

type App struct {
	log        *slog.Logger
	gRPCServer *grpc.Server
	health     *health.Server
	port       int
}

func InterceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, maskSensitiveFields(fields)...)
	})
}

// protectedMethods need a bearer access token for the subject they act on.
func protectedMethods() []string {
	return []string{
		sessiongrpc.MethodRevoke,
		sessiongrpc.MethodRevokeAll,
		sessiongrpc.MethodListSessions,
	}
}

// serviceMethods are called by trusted backends only: the login flow after its
// own credential check, and schedulers.
func serviceMethods() []string {
	return []string{
		sessiongrpc.MethodIssue,
		sessiongrpc.MethodSweep,
	}
}

// New creates new gRPC server app.
func New(
	log *slog.Logger,
	sessions sessiongrpc.Sessions,
	port int,
	timeout time.Duration,
	trustedPeers []string,
	serviceToken string,
) (*App, error) {
	const op = "grpcapp.New"

	// Payloads carry tokens, so only call boundaries are logged.
	loggingOpts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	recoveryOpts := []recovery.Option{
		recovery.WithRecoveryHandler(func(p interface{}) (err error) {
			log.Error("Recovered from panic", slog.Any("panic", p))

			return status.Errorf(codes.Internal, "internal error")
		}),
	}

	peers, err := parseTrustedPeers(trustedPeers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	realIpOpts := []realip.Option{
		realip.WithTrustedPeers(peers),
		realip.WithHeaders([]string{realip.XForwardedFor, realip.XRealIp}),
		realip.WithTrustedProxiesCount(1),
	}

	authInterceptor := interceptors.NewAuthInterceptor(log, sessions, protectedMethods(),
		interceptors.WithServiceMethods(serviceToken, serviceMethods()...),
	)

	logHeadersInterceptor := interceptors.NewLogHeadersInterceptor(log)

	gRPCServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recovery.UnaryServerInterceptor(recoveryOpts...),
		interceptors.TimeoutUnary(timeout),
		realip.UnaryServerInterceptorOpts(realIpOpts...),
		logHeadersInterceptor.LogHeadersUnary(),
		logging.UnaryServerInterceptor(InterceptorLogger(log), loggingOpts...),
		authInterceptor.AuthorizeUnary(),
	))

	sessiongrpc.Register(gRPCServer, log, sessions)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(sessiongrpc.ServiceName, healthgrpc.HealthCheckResponse_SERVING)
	healthgrpc.RegisterHealthServer(gRPCServer, healthServer)

	return &App{
		log:        log,
		gRPCServer: gRPCServer,
		health:     healthServer,
		port:       port,
	}, nil
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.Serve(l)
}

// Serve accepts connections on l until the server is stopped.
func (a *App) Serve(l net.Listener) error {
	const op = "grpcapp.Serve"

	a.log.Info("grpc server started", slog.String("addr", l.Addr().String()))

	if err := a.gRPCServer.Serve(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Drain reports NOT_SERVING to health checks so balancers stop routing here.
func (a *App) Drain() {
	a.health.Shutdown()
}

// Stop waits for in-flight calls, or forces the stop once hardTimeout passes.
func (a *App) Stop(hardTimeout time.Duration) {
	const op = "grpcapp.Stop"

	a.log.With(slog.String("op", op)).
		Info("stopping gRPC server", slog.Int("port", a.port))

	timer := time.AfterFunc(hardTimeout, func() {
		a.log.Error("Server couldn't stop gracefully in time. Doing force stop.")
		a.gRPCServer.Stop()
	})
	defer timer.Stop()

	a.gRPCServer.GracefulStop()
}

func parseTrustedPeers(raw []string) ([]netip.Prefix, error) {
	if len(raw) == 0 {
		return []netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")}, nil
	}

	peers := make([]netip.Prefix, 0, len(raw))
	for _, p := range raw {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			addr, addrErr := netip.ParseAddr(p)
			if addrErr != nil {
				return nil, fmt.Errorf("trusted peer %q: %w", p, err)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		peers = append(peers, prefix)
	}

	return peers, nil
}
