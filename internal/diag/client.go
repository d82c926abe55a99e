package diag

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client talks to a running control plane's diagnostics service.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// #endregion client-struct

// #region constructor
// NewClient connects to the diagnostics server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close leaves it open.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down the connection if the client opened it.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// #endregion constructor

// #region calls
// Status fetches the current control plane snapshot.
func (c *Client) Status(ctx context.Context) (controlplane.Status, error) {
	var st controlplane.Status
	err := c.invoke(ctx, methodStatus, &emptypb.Empty{}, &st)
	return st, err
}

// RequestPreset submits a switch request.
func (c *Client) RequestPreset(ctx context.Context, req preset.Request) (preset.SwitchReport, error) {
	in, err := toStruct(req)
	if err != nil {
		return preset.SwitchReport{}, err
	}
	var rep preset.SwitchReport
	err = c.invoke(ctx, methodRequestPreset, in, &rep)
	return rep, err
}

// SetTestOverride applies the non-nil fields of o.
func (c *Client) SetTestOverride(ctx context.Context, o Override) (controlplane.Status, error) {
	in, err := toStruct(o)
	if err != nil {
		return controlplane.Status{}, err
	}
	var st controlplane.Status
	err = c.invoke(ctx, methodSetTestOverride, in, &st)
	return st, err
}

// RecentEvents fetches buffered gate flips and switch reports.
func (c *Client) RecentEvents(ctx context.Context) (Events, error) {
	var ev Events
	err := c.invoke(ctx, methodRecentEvents, &emptypb.Empty{}, &ev)
	return ev, err
}

func (c *Client) invoke(ctx context.Context, method string, in any, out any) error {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return fmt.Errorf("%s rpc: %w", method, err)
	}
	return fromStruct(resp, out)
}

// #endregion calls
