package grpcapi

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/discussion-platform/internal/platform/httpserver"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// ThreadService implements ThreadServiceServer on top of the service layer.
// Callers are trusted internal services that pass the end user in metadata.
type ThreadService struct {
	Service *service.Service
	Log     *zap.Logger
}

func NewThreadService(svc *service.Service, log *zap.Logger) *ThreadService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadService{Service: svc, Log: log}
}

type caller struct {
	UserID string
	Name   string
	Admin  bool
}

func callerFromMD(ctx context.Context) (caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return caller{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	first := func(k string) string {
		if v := md.Get(k); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	c := caller{
		UserID: first("user_id"),
		Name:   first("user_name"),
		Admin:  strings.EqualFold(first("role"), "admin"),
	}
	if c.UserID == "" {
		return caller{}, status.Error(codes.Unauthenticated, "missing user_id in metadata")
	}
	return c, nil
}

func stringField(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return strings.TrimSpace(v.GetStringValue())
	}
	return ""
}

// maxNumericID is the largest integer a JSON number carries exactly. Larger
// ids must be sent as strings.
const maxNumericID = 1 << 53

func idField(in *structpb.Struct, key string) (thread.ID, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
		n := v.GetNumberValue()
		if n < 1 || n > maxNumericID || n != math.Trunc(n) {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", key)
		}
		return thread.ID(n), nil
	}
	raw := strings.TrimSpace(v.GetStringValue())
	if raw == "" {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	id, err := thread.ParseID(raw)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", key)
	}
	return id, nil
}

func commentToMap(n thread.Node) map[string]any {
	m := map[string]any{
		"id":               n.ID.String(),
		"thread_root_id":   n.ThreadRootID.String(),
		"commentable_type": n.Commentable.Type,
		"commentable_id":   n.Commentable.ID,
		"deleted":          n.Deleted,
		"left":             n.Left,
		"right":            n.Right,
	}
	if n.ParentID != nil {
		m["parent_id"] = n.ParentID.String()
	}
	if !n.Deleted {
		m["author_id"] = n.Author.ID
		m["author_name"] = n.Author.Name
		m["content"] = n.Content
		m["created_at"] = n.CreatedAt.Format(time.RFC3339Nano)
	}
	return m
}

func decoratedToMap(d *thread.Decorated) map[string]any {
	m := map[string]any{
		"id":                  d.ID.String(),
		"visible":             d.IsVisible(),
		"visible_descendants": d.VisibleDescendantCount(),
	}
	if d.ParentID != nil {
		m["parent_id"] = d.ParentID.String()
	}
	if d.IsVisible() {
		m["author_id"] = d.Author.ID
		m["author_name"] = d.Author.Name
		m["content"] = d.Content
		m["created_at"] = d.CreatedAt.Format(time.RFC3339Nano)
	}
	replies := d.VisibleReplies()
	list := make([]any, 0, len(replies))
	for _, r := range replies {
		list = append(list, decoratedToMap(r))
	}
	m["replies"] = list
	return m
}

func (s *ThreadService) respond(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		s.Log.Error("grpc encode response", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// CreateReply creates a reply when parent_id is set, otherwise a new thread
// root on commentable_type/commentable_id.
func (s *ThreadService) CreateReply(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := callerFromMD(ctx)
	if err != nil {
		return nil, err
	}
	content := stringField(in, "content")
	if content == "" {
		return nil, status.Error(codes.InvalidArgument, "content must not be empty")
	}

	nc := service.NewComment{
		Author:  thread.Author{ID: who.UserID, Name: who.Name},
		Content: content,
	}
	if _, ok := in.GetFields()["parent_id"]; ok {
		parent, err := idField(in, "parent_id")
		if err != nil {
			return nil, err
		}
		nc.ParentID = &parent
	} else {
		nc.Commentable = thread.Commentable{
			Type: stringField(in, "commentable_type"),
			ID:   stringField(in, "commentable_id"),
		}
	}

	n, err := s.Service.Create(ctx, nc)
	if err != nil {
		return nil, toStatus(s.Log, err)
	}
	return s.respond(map[string]any{"comment": commentToMap(n)})
}

func (s *ThreadService) DeleteComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := callerFromMD(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idField(in, "comment_id")
	if err != nil {
		return nil, err
	}
	res, err := s.Service.Delete(ctx, id, service.Actor{UserID: who.UserID, Admin: who.Admin})
	if err != nil {
		return nil, toStatus(s.Log, err)
	}

	removed := make([]any, len(res.Removed))
	for i, r := range res.Removed {
		removed[i] = r.String()
	}
	out := map[string]any{
		"thread_root_id": res.ThreadRootID.String(),
		"removed":        removed,
	}
	if res.SoftDeleted != nil {
		out["soft_deleted"] = res.SoftDeleted.String()
	}
	return s.respond(out)
}

func (s *ThreadService) GetComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(in, "comment_id")
	if err != nil {
		return nil, err
	}
	n, err := s.Service.Get(ctx, id)
	if err != nil {
		return nil, toStatus(s.Log, err)
	}
	return s.respond(map[string]any{"comment": commentToMap(n)})
}

// DecorateThread returns the visible subtree below comment_id.
func (s *ThreadService) DecorateThread(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(in, "comment_id")
	if err != nil {
		return nil, err
	}
	d, err := s.Service.Decorate(ctx, id, in.GetFields()["already_associated"].GetBoolValue(), thread.NotDeleted)
	if err != nil {
		return nil, toStatus(s.Log, err)
	}
	return s.respond(map[string]any{
		"thread_root_id":   d.Root().ID.String(),
		"commentable_type": d.Root().Commentable.Type,
		"commentable_id":   d.Root().Commentable.ID,
		"focus":            decoratedToMap(d.Focus()),
	})
}

// UnaryLogger logs each call with its status code. The x-request-id metadata
// value, or a fresh UUID, is carried in the context like an HTTP request id.
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		rid := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				rid = strings.TrimSpace(v[0])
			}
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = httpserver.WithRequestID(ctx, rid)
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", rid))

		resp, err := handler(ctx, req)
		log.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("request_id", rid),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}
