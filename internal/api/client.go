package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a session daemon over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, "GetStatus", &GetStatusRequest{})
}

func (c *Client) ListConversations(ctx context.Context, includeMessages bool) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c, "ListConversations", &ListConversationsRequest{IncludeMessages: includeMessages})
}

func (c *Client) OpenConversation(ctx context.Context, username string) (*OpenConversationResponse, error) {
	return invoke[OpenConversationResponse](ctx, c, "OpenConversation", &OpenConversationRequest{Username: username})
}

func (c *Client) CloseConversation(ctx context.Context) (*CloseConversationResponse, error) {
	return invoke[CloseConversationResponse](ctx, c, "CloseConversation", &CloseConversationRequest{})
}

func (c *Client) SendMessage(ctx context.Context, username, text string) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c, "SendMessage", &SendMessageRequest{Username: username, Text: text})
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) (*SearchUsersResponse, error) {
	return invoke[SearchUsersResponse](ctx, c, "SearchUsers", &SearchUsersRequest{Query: query, Limit: limit})
}

func (c *Client) ClearSearch(ctx context.Context) (*ClearSearchResponse, error) {
	return invoke[ClearSearchResponse](ctx, c, "ClearSearch", &ClearSearchRequest{})
}

// WatchUpdates calls fn for every update until ctx is done, the stream ends
// or fn returns an error.
func (c *Client) WatchUpdates(ctx context.Context, fn func(*UpdateEvent) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("WatchUpdates"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&WatchUpdatesRequest{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(UpdateEvent)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
