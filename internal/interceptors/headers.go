package interceptors

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Header values that carry credentials are never written to logs.
var sensitiveHeaders = map[string]struct{}{
	"authorization":   {},
	"cookie":          {},
	"x-refresh-token": {},
}

type LogHeadersInterceptor struct {
	logger *slog.Logger
}

func NewLogHeadersInterceptor(logger *slog.Logger) *LogHeadersInterceptor {
	return &LogHeadersInterceptor{logger: logger}
}

func (i *LogHeadersInterceptor) LogHeadersUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for key, values := range md {
				for _, value := range values {
					i.logger.Debug("header",
						slog.String("method", info.FullMethod),
						slog.String("key", key),
						slog.String("value", MaskHeader(key, value)),
					)
				}
			}
		}

		return handler(ctx, req)
	}
}

// MaskHeader hides credential header values, keeping an auth scheme prefix if present.
func MaskHeader(key, value string) string {
	if _, ok := sensitiveHeaders[strings.ToLower(key)]; !ok {
		return value
	}

	if scheme, _, found := strings.Cut(value, " "); found {
		return scheme + " ****"
	}
	return "****"
}
