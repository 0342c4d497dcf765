// Package events publishes thread domain events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

const (
	StreamName = "THREADS"
	// StreamSubjects covers both commands and events.
	StreamSubjects = "threads.>"

	SubjectReplyCreated       = "threads.events.reply_created"
	SubjectCommentRemoved     = "threads.events.comment_removed"
	SubjectCommentSoftDeleted = "threads.events.comment_soft_deleted"
)

// Event is the envelope sent on every threads.events.* subject.
type Event struct {
	EventID      string         `json:"event_id"`
	EventName    string         `json:"event_name"`
	ActorID      string         `json:"actor_id,omitempty"`
	ThreadRootID string         `json:"thread_root_id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// JetStream is the part of nats.JetStreamContext the publisher needs.
type JetStream interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher sends events fire-and-forget. A nil *Publisher and one built
// with a nil JetStream are no-ops.
type Publisher struct {
	js  JetStream
	log *zap.Logger
}

func New(js JetStream, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// CommentCreated announces a new root or reply.
func (p *Publisher) CommentCreated(n thread.Node) {
	props := map[string]any{
		"comment_id":       n.ID.String(),
		"commentable_type": n.Commentable.Type,
		"commentable_id":   n.Commentable.ID,
		"left":             n.Left,
		"right":            n.Right,
	}
	if n.ParentID != nil {
		props["parent_id"] = n.ParentID.String()
	}
	p.publish(SubjectReplyCreated, "reply_created", n.Author.ID, n.ThreadRootID, props)
}

// CommentRemoved announces a removal. A soft delete and a physical removal
// go to different subjects.
func (p *Publisher) CommentRemoved(r thread.Removal, actorID string) {
	if r.SoftDeleted != nil {
		p.publish(SubjectCommentSoftDeleted, "comment_soft_deleted", actorID, r.ThreadRootID,
			map[string]any{"comment_id": r.SoftDeleted.String()})
		return
	}
	removed := make([]string, len(r.Removed))
	for i, id := range r.Removed {
		removed[i] = id.String()
	}
	p.publish(SubjectCommentRemoved, "comment_removed", actorID, r.ThreadRootID,
		map[string]any{"removed": removed})
}

func (p *Publisher) publish(subject, name, actorID string, root thread.ID, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:      uuid.NewString(),
		EventName:    name,
		ActorID:      actorID,
		ThreadRootID: root.String(),
		OccurredAt:   time.Now().UTC(),
		Properties:   props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", name), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data, nats.MsgId(ev.EventID)); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// EnsureStream creates the THREADS stream or widens its subjects.
func EnsureStream(_ context.Context, js nats.JetStreamContext) error {
	info, err := js.StreamInfo(StreamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == StreamSubjects {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{StreamSubjects}
		_, err := js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}
