package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/discussion-platform/internal/platform/api"
	"github.com/example/discussion-platform/internal/platform/httpserver"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// contentionRetryAfter is the Retry-After hint sent with a 503 when a thread
// is locked by another writer.
const contentionRetryAfter = time.Second

// writeError maps domain errors onto the API error envelope.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, thread.ErrAlreadyDeleted):
		api.Conflict(w, "ALREADY_DELETED", "comment is already deleted", rid, nil)
	case errors.Is(err, thread.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "comment not found", rid)
	case errors.Is(err, thread.ErrDuplicate):
		api.Conflict(w, "DUPLICATE", "an identical comment already exists", rid, nil)
	case errors.Is(err, thread.ErrParentDeleted):
		api.Conflict(w, "PARENT_DELETED", "cannot reply to a deleted comment", rid, nil)
	case errors.Is(err, thread.ErrInvalid):
		api.BadRequest(w, "INVALID", err.Error(), rid, nil)
	case errors.Is(err, service.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "only the author or an admin may delete this comment", rid)
	case errors.Is(err, thread.ErrContention):
		api.Unavailable(w, "CONTENTION", "thread is busy, retry shortly", rid, contentionRetryAfter)
	default:
		if errors.Is(err, thread.ErrIntegrity) {
			log.Error("thread integrity violation", zap.String("request_id", rid), zap.Error(err))
		} else {
			log.Error("request failed", zap.String("request_id", rid), zap.Error(err))
		}
		api.Internal(w, rid)
	}
}
