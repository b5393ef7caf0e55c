// Package rpcclient calls the API service over gRPC.
package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sentinel.org/internal/rpcapi"
)

var (
	ErrUnavailable   = errors.New("rpcclient: service unavailable")
	ErrBadRequest    = errors.New("rpcclient: malformed request")
	ErrNotAuthorized = errors.New("rpcclient: not authorized")
)

// Error is an application error returned by the API.
type Error struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    string   `json:"data"`
	Debug   []string `json:"debug,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s %s", e.Code, e.Message, e.Data)
}

// Is matches ErrNotAuthorized for rejected credentials.
func (e *Error) Is(target error) bool {
	return target == ErrNotAuthorized && e.Data == "Not authorized."
}

// Client wraps the gRPC API service.
type Client struct {
	conn *grpc.ClientConn
	svc  rpcapi.APIServiceClient
	auth string
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, svc: rpcapi.NewAPIServiceClient(conn)}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// WithAuth returns a client that sends token as the bearer credential.
// The connection is shared.
func (c *Client) WithAuth(token string) *Client {
	cp := *c
	cp.auth = token
	return &cp
}

// Call invokes method with params and decodes the result into out.
// out may be nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	fields := map[string]any{"method": method}
	if params != nil {
		generic, err := toGeneric(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		fields["params"] = generic
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if c.auth != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.auth)
	}

	resp, err := c.svc.Call(ctx, req)
	if err != nil {
		return mapError(err)
	}
	if e, ok := resp.GetFields()["error"]; ok {
		return decodeError(e)
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp.GetFields()["result"].AsInterface())
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Login opens a session and returns a client authenticated with it.
func (c *Client) Login(ctx context.Context, username, password string) (*Client, string, error) {
	var sid string
	err := c.Call(ctx, "user.login", map[string]any{"username": username, "password": password}, &sid)
	if err != nil {
		return nil, "", err
	}
	return c.WithAuth(sid), sid, nil
}

// Version returns the API version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	if err := c.Call(ctx, "apiinfo.version", []any{}, &v); err != nil {
		return "", err
	}
	return v, nil
}

func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeError(v *structpb.Value) error {
	raw, err := json.Marshal(v.AsInterface())
	if err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	var e Error
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return &e
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrBadRequest, st.Message())
	default:
		return err
	}
}
