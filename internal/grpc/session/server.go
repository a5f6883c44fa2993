package sessiongrpc

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/realip"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"portal/internal/domain/models"
	"portal/internal/interceptors"
	"portal/internal/lib/jwt"
	"portal/internal/lib/logger/sl"
	"portal/internal/services/session"
)

// Sessions is the lifecycle API exposed over gRPC.
type Sessions interface {
	Issue(ctx context.Context, req session.IssueRequest) (session.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error)
	ValidateAccess(ctx context.Context, accessToken string) (*jwt.Claims, error)
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAll(ctx context.Context, subjectID string) (int64, error)
	ListSessions(ctx context.Context, subjectID string) ([]models.SessionSummary, error)
	Sweep(ctx context.Context) (int64, error)
}

type serverAPI struct {
	log      *slog.Logger
	sessions Sessions
}

func Register(gRPCServer *grpc.Server, log *slog.Logger, sessions Sessions) {
	gRPCServer.RegisterService(&serviceDesc, &serverAPI{log: log, sessions: sessions})
}

func (s *serverAPI) Issue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	req := session.IssueRequest{
		SubjectID: fields["subject_id"].GetStringValue(),
		Email:     fields["email"].GetStringValue(),
		UserAgent: fields["user_agent"].GetStringValue(),
	}
	if addr, ok := realip.FromContext(ctx); ok && addr.IsValid() {
		req.IPAddress = addr.String()
	}

	if req.SubjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "subject_id is required")
	}

	pair, err := s.sessions.Issue(ctx, req)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return tokenPairStruct(pair)
}

func (s *serverAPI) Refresh(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token is required")
	}

	pair, err := s.sessions.Refresh(ctx, in.GetValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	return tokenPairStruct(pair)
}

func (s *serverAPI) Validate(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "access_token is required")
	}

	claims, err := s.sessions.ValidateAccess(ctx, in.GetValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	return newStruct(map[string]any{
		"subject_id": claims.Subject,
		"email":      claims.Email,
		"session_id": claims.SessionID,
	})
}

func (s *serverAPI) Revoke(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	sessionID := in.GetValue()
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}

	// A bearer may only revoke its own sessions. Foreign ids look unknown.
	if claims, ok := interceptors.ClaimsFromContext(ctx); ok && claims.SessionID != sessionID {
		own, err := s.sessions.ListSessions(ctx, claims.Subject)
		if err != nil {
			return nil, s.toStatus(err)
		}
		if !slices.ContainsFunc(own, func(sum models.SessionSummary) bool { return sum.ID == sessionID }) {
			return wrapperspb.Bool(false), nil
		}
	}

	deleted, err := s.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return wrapperspb.Bool(deleted), nil
}

func (s *serverAPI) RevokeAll(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	subjectID, err := ownSubject(ctx, in.GetValue())
	if err != nil {
		return nil, err
	}

	n, err := s.sessions.RevokeAll(ctx, subjectID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return wrapperspb.Int64(n), nil
}

func (s *serverAPI) ListSessions(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	subjectID, err := ownSubject(ctx, in.GetValue())
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListSessions(ctx, subjectID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	list := make([]any, 0, len(sessions))
	for _, sum := range sessions {
		list = append(list, map[string]any{
			"session_id":       sum.ID,
			"ip_address":       sum.IPAddress,
			"user_agent":       sum.UserAgent,
			"created_at":       formatTime(sum.CreatedAt),
			"last_accessed_at": formatTime(sum.LastAccessedAt),
			"expires_at":       formatTime(sum.ExpiresAt),
		})
	}

	return newStruct(map[string]any{"sessions": list})
}

func (s *serverAPI) Sweep(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.sessions.Sweep(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return wrapperspb.Int64(n), nil
}

// toStatus hides token failure details from the client behind one message.
func (s *serverAPI) toStatus(err error) error {
	kind := session.KindOf(err)

	switch {
	case kind.TokenRejected():
		return status.Error(codes.Unauthenticated, "reauthenticate")
	case kind == session.KindInvalidRequest:
		return status.Error(codes.InvalidArgument, "invalid request")
	case kind == session.KindStorageFailure:
		return status.Error(codes.Unavailable, "session store unavailable")
	default:
		s.log.Error("unexpected session error", sl.Err(err))
		return status.Error(codes.Internal, "internal error")
	}
}

// ownSubject resolves the subject a self-service call acts on.
// With an authenticated bearer the request may only name the bearer's own subject.
func ownSubject(ctx context.Context, requested string) (string, error) {
	claims, ok := interceptors.ClaimsFromContext(ctx)
	if !ok {
		if requested == "" {
			return "", status.Error(codes.InvalidArgument, "subject_id is required")
		}
		return requested, nil
	}

	if requested != "" && requested != claims.Subject {
		return "", status.Error(codes.PermissionDenied, "subject mismatch")
	}

	return claims.Subject, nil
}

func tokenPairStruct(pair session.TokenPair) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_in":  pair.AccessExpiresIn.Seconds(),
		"refresh_expires_in": pair.RefreshExpiresIn.Seconds(),
		"session_id":         pair.SessionID,
	})
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
