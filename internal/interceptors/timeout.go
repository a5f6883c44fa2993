package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// TimeoutUnary bounds every call with d unless the client already sent an
// earlier deadline. A non-positive d disables the bound.
func TimeoutUnary(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= d {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
