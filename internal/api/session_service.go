package api

import (
	"context"
	"time"

	"github.com/matheus3301/duochat/internal/bus"
	"github.com/matheus3301/duochat/internal/convo"
	"github.com/matheus3301/duochat/internal/status"
	"go.uber.org/zap"
)

// Engine is the part of the sync engine the API drives.
type Engine interface {
	Self() convo.User
	Conversations() []convo.Conversation
	UnreadTotal() int
	PendingOrphans() int
	LastSnapshot() time.Time
	Active() string
	Open(ctx context.Context, username string) (convo.Conversation, error)
	CloseActive()
	ResolveConversationByDisplayName(name string) (convo.Conversation, bool)
	SendMessage(ctx context.Context, recipientID int64, text string) (convo.Message, error)
	AddSearchedUsers(users []convo.User) int
	ClearSearchedUsers() int
}

// UserDirectory looks up users to start conversations with.
type UserDirectory interface {
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]convo.User, error)
}

// Service implements duochat.v1.ConversationService for one session daemon.
type Service struct {
	sessionName string
	startedAt   time.Time
	engine      Engine
	users       UserDirectory
	machine     *status.Machine
	bus         *bus.Bus
	logger      *zap.Logger
}

var _ ConversationServer = (*Service)(nil)

// NewService creates the API service. users and b may be nil; searching and
// watching are then unavailable.
func NewService(sessionName string, engine Engine, users UserDirectory, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		engine:      engine,
		users:       users,
		machine:     machine,
		bus:         b,
		logger:      logger,
	}
}

func (s *Service) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	self := s.engine.Self()
	resp := &GetStatusResponse{
		Session:           s.sessionName,
		UserID:            self.ID,
		Username:          self.Username,
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
		ConversationCount: len(s.engine.Conversations()),
		UnreadTotal:       s.engine.UnreadTotal(),
		PendingOrphans:    s.engine.PendingOrphans(),
		Active:            s.engine.Active(),
	}
	if s.machine != nil {
		resp.Status = string(s.machine.Current())
		resp.StatusSinceUnixMs = s.machine.Since().UnixMilli()
	}
	if at := s.engine.LastSnapshot(); !at.IsZero() {
		resp.LastSnapshotUnixMs = at.UnixMilli()
	}
	return resp, nil
}
