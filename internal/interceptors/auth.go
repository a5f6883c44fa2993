package interceptors

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"portal/internal/lib/jwt"
	"portal/internal/services/session"
)

type ClaimsKeyType struct{}

var ClaimsKey = ClaimsKeyType{}

type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*jwt.Claims, error)
}

// AuthInterceptor requires a valid portal access token on protected methods
// and the shared service token on service methods.
type AuthInterceptor struct {
	log          *slog.Logger
	validator    AccessValidator
	protected    map[string]struct{}
	service      map[string]struct{}
	serviceToken []byte
}

type AuthOption func(*AuthInterceptor)

// WithServiceMethods restricts methods to trusted backends presenting token.
// A blank token rejects every call to them.
func WithServiceMethods(token string, methods ...string) AuthOption {
	return func(i *AuthInterceptor) {
		i.serviceToken = []byte(token)
		for _, m := range methods {
			i.service[m] = struct{}{}
		}
	}
}

func NewAuthInterceptor(log *slog.Logger, validator AccessValidator, protectedMethods []string, opts ...AuthOption) *AuthInterceptor {
	i := &AuthInterceptor{
		log:       log,
		validator: validator,
		protected: methodSet(protectedMethods),
		service:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

func methodSet(methods []string) map[string]struct{} {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return set
}

func (i *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if _, ok := i.service[method]; ok {
		return ctx, i.authorizeService(ctx, method)
	}

	if _, ok := i.protected[method]; !ok {
		return ctx, nil
	}

	token, err := auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "reauthenticate")
	}

	claims, err := i.validator.ValidateAccess(ctx, token)
	if err != nil {
		kind := session.KindOf(err)
		i.log.Info("bearer rejected",
			slog.String("method", method),
			slog.String("kind", kind.String()),
		)

		if kind == session.KindStorageFailure {
			return ctx, status.Error(codes.Unavailable, "session store unavailable")
		}
		return ctx, status.Error(codes.Unauthenticated, "reauthenticate")
	}

	return context.WithValue(ctx, ClaimsKey, claims), nil
}

func (i *AuthInterceptor) authorizeService(ctx context.Context, method string) error {
	token, err := auth.AuthFromMD(ctx, "bearer")
	if err != nil || len(i.serviceToken) == 0 ||
		subtle.ConstantTimeCompare([]byte(token), i.serviceToken) != 1 {
		i.log.Warn("service call rejected", slog.String("method", method))
		return status.Error(codes.Unauthenticated, "service credentials required")
	}

	return nil
}

func (i *AuthInterceptor) AuthorizeUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		newCtx, err := i.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}

		return handler(newCtx, req)
	}
}

// ClaimsFromContext returns the claims of the bearer authorized for this call.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*jwt.Claims)
	return claims, ok && claims != nil
}
