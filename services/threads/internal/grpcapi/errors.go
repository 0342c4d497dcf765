package grpcapi

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

const errorDomain = "threads"

// toStatus maps a domain error onto a gRPC status with an ErrorInfo detail.
func toStatus(log *zap.Logger, err error) error {
	var (
		code   codes.Code
		reason string
		msg    = err.Error()
	)
	switch {
	case errors.Is(err, thread.ErrAlreadyDeleted):
		code, reason = codes.FailedPrecondition, "ALREADY_DELETED"
	case errors.Is(err, thread.ErrNotFound):
		code, reason = codes.NotFound, "NOT_FOUND"
	case errors.Is(err, thread.ErrDuplicate):
		code, reason = codes.AlreadyExists, "DUPLICATE"
	case errors.Is(err, thread.ErrParentDeleted):
		code, reason = codes.FailedPrecondition, "PARENT_DELETED"
	case errors.Is(err, thread.ErrInvalid):
		code, reason = codes.InvalidArgument, "INVALID"
	case errors.Is(err, service.ErrForbidden):
		code, reason = codes.PermissionDenied, "FORBIDDEN"
	case errors.Is(err, thread.ErrContention):
		code, reason = codes.Unavailable, "CONTENTION"
	default:
		log.Error("grpc request failed", zap.Error(err))
		code, reason, msg = codes.Internal, "INTERNAL", "internal error"
		if errors.Is(err, thread.ErrIntegrity) {
			reason = "INTEGRITY"
		}
	}

	st := status.New(code, msg)
	info := &errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}
	var (
		st2  *status.Status
		derr error
	)
	if code == codes.Unavailable {
		st2, derr = st.WithDetails(info, &errdetails.RetryInfo{RetryDelay: durationpb.New(time.Second)})
	} else {
		st2, derr = st.WithDetails(info)
	}
	if derr != nil {
		return st.Err()
	}
	return st2.Err()
}
