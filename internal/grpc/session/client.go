package sessiongrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the Sessions service. Responses are returned as the raw
// well-known messages the server sends.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Issue(ctx context.Context, subjectID, email, userAgent string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"subject_id": subjectID,
		"email":      email,
		"user_agent": userAgent,
	})
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodIssue, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRefresh, wrapperspb.String(refreshToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Validate(ctx context.Context, accessToken string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodValidate, wrapperspb.String(accessToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Revoke(ctx context.Context, sessionID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodRevoke, wrapperspb.String(sessionID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) RevokeAll(ctx context.Context, subjectID string, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, MethodRevokeAll, wrapperspb.String(subjectID), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *Client) ListSessions(ctx context.Context, subjectID string, opts ...grpc.CallOption) ([]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListSessions, wrapperspb.String(subjectID), out, opts...); err != nil {
		return nil, err
	}
	return out.GetFields()["sessions"].GetListValue().AsSlice(), nil
}

func (c *Client) Sweep(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, MethodSweep, &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
