package api

import (
	"github.com/google/uuid"
	"github.com/matheus3301/duochat/internal/bus"
	"github.com/matheus3301/duochat/internal/status"
	intsync "github.com/matheus3301/duochat/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// WatchUpdates streams conversation changes and session status changes until
// the client goes away.
func (s *Service) WatchUpdates(_ *WatchUpdatesRequest, stream UpdateStream) error {
	if s.bus == nil {
		return grpcstatus.Error(codes.Unavailable, "event bus not available")
	}
	convCh, unsubConv := s.bus.Subscribe("conversation.", 256)
	defer unsubConv()
	sessCh, unsubSess := s.bus.Subscribe("session.", 16)
	defer unsubSess()

	for {
		var evt bus.Event
		select {
		case evt = <-convCh:
		case evt = <-sessCh:
		case <-stream.Context().Done():
			return nil
		}
		if err := stream.Send(s.updateEvent(evt)); err != nil {
			return err
		}
	}
}

func (s *Service) updateEvent(evt bus.Event) *UpdateEvent {
	out := &UpdateEvent{
		EventID:          uuid.New().String(),
		Session:          s.sessionName,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Kind:             evt.Kind,
	}
	switch p := evt.Payload.(type) {
	case intsync.Update:
		out.ConversationID = p.ConversationID
		out.OtherUserID = p.OtherUserID
	case status.StatusChange:
		out.Status = string(p.To)
	}
	return out
}
