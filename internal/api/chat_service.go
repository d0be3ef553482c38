package api

import (
	"context"
	"errors"
	"strings"

	intsync "github.com/matheus3301/duochat/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultSearchLimit = 20

func (s *Service) ListConversations(_ context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	self := s.engine.Self().ID
	convs := s.engine.Conversations()

	resp := &ListConversationsResponse{
		Conversations: make([]Conversation, 0, len(convs)),
		UnreadTotal:   s.engine.UnreadTotal(),
	}
	for _, c := range convs {
		resp.Conversations = append(resp.Conversations, conversationToAPI(c, self, req.IncludeMessages))
	}
	return resp, nil
}

// OpenConversation makes a conversation active. A failed read receipt is
// logged; the conversation is still returned.
func (s *Service) OpenConversation(ctx context.Context, req *OpenConversationRequest) (*OpenConversationResponse, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "username is required")
	}
	c, err := s.engine.Open(ctx, req.Username)
	switch {
	case errors.Is(err, intsync.ErrUnknownConversation):
		return nil, toStatus("open conversation", err)
	case err != nil:
		s.logger.Warn("mark as read failed", zap.String("username", req.Username), zap.Error(err))
	}
	return &OpenConversationResponse{Conversation: conversationToAPI(c, s.engine.Self().ID, true)}, nil
}

func (s *Service) CloseConversation(_ context.Context, _ *CloseConversationRequest) (*CloseConversationResponse, error) {
	closed := s.engine.Active()
	s.engine.CloseActive()
	return &CloseConversationResponse{Closed: closed}, nil
}

// SearchUsers finds users by name and adds a provisional conversation for
// every match there is no conversation with yet.
func (s *Service) SearchUsers(ctx context.Context, req *SearchUsersRequest) (*SearchUsersResponse, error) {
	if s.users == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "user directory not available")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	users, err := s.users.SearchUsers(ctx, query, s.engine.Self().ID, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search users: %v", err)
	}
	added := s.engine.AddSearchedUsers(users)
	return &SearchUsersResponse{Users: users, Added: added}, nil
}

func (s *Service) ClearSearch(_ context.Context, _ *ClearSearchRequest) (*ClearSearchResponse, error) {
	return &ClearSearchResponse{Removed: s.engine.ClearSearchedUsers()}, nil
}
