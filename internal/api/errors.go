package api

import (
	"errors"

	"github.com/matheus3301/duochat/internal/convo"
	intsync "github.com/matheus3301/duochat/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps engine and store errors onto gRPC status codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, intsync.ErrEmptyMessage), errors.Is(err, intsync.ErrInvalidMessage):
		code = codes.InvalidArgument
	case errors.Is(err, intsync.ErrUnknownRecipient), errors.Is(err, intsync.ErrUnknownConversation):
		code = codes.NotFound
	case errors.Is(err, convo.ErrRejected):
		code = codes.PermissionDenied
	case errors.Is(err, convo.ErrRetryable):
		code = codes.Unavailable
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
