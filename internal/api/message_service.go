package api

import (
	"context"
	"strings"

	intsync "github.com/matheus3301/duochat/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SendMessage sends text to the user shown as req.Username. The recipient
// must have a conversation in the list, persisted or found by a search.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "username is required")
	}
	c, ok := s.engine.ResolveConversationByDisplayName(req.Username)
	if !ok {
		return nil, toStatus("send message", intsync.ErrUnknownRecipient)
	}
	m, err := s.engine.SendMessage(ctx, c.OtherUser.ID, req.Text)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	return &SendMessageResponse{Message: messageToAPI(m, s.engine.Self().ID)}, nil
}
