package api

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "duochat.v1.ConversationService"

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// ConversationServer is the server API of duochat.v1.ConversationService.
type ConversationServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	OpenConversation(context.Context, *OpenConversationRequest) (*OpenConversationResponse, error)
	CloseConversation(context.Context, *CloseConversationRequest) (*CloseConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*SearchUsersResponse, error)
	ClearSearch(context.Context, *ClearSearchRequest) (*ClearSearchResponse, error)
	WatchUpdates(*WatchUpdatesRequest, UpdateStream) error
}

// UpdateStream is the server side of a WatchUpdates call.
type UpdateStream interface {
	Send(*UpdateEvent) error
	Context() context.Context
}

type updateStream struct {
	grpc.ServerStream
}

func (s *updateStream) Send(e *UpdateEvent) error {
	return s.SendMsg(e)
}

// RegisterConversationServer registers srv on s.
func RegisterConversationServer(s grpc.ServiceRegistrar, srv ConversationServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ConversationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", ConversationServer.GetStatus),
		unary("ListConversations", ConversationServer.ListConversations),
		unary("OpenConversation", ConversationServer.OpenConversation),
		unary("CloseConversation", ConversationServer.CloseConversation),
		unary("SendMessage", ConversationServer.SendMessage),
		unary("SearchUsers", ConversationServer.SearchUsers),
		unary("ClearSearch", ConversationServer.ClearSearch),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchUpdates",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchUpdatesRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ConversationServer).WatchUpdates(in, &updateStream{stream})
			},
		},
	},
}

func unary[Req, Resp any](name string, call func(ConversationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConversationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConversationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
