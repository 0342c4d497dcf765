// Package worker applies thread commands delivered over NATS JetStream.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/discussion-platform/services/threads/internal/events"
	"github.com/example/discussion-platform/services/threads/internal/idempotency"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

const (
	SubjectCreate  = "threads.commands.create"
	SubjectDelete  = "threads.commands.delete"
	SubjectDLQ     = "threads.dlq"
	commandsFilter = "threads.commands.*"
	durableName    = "threads_commands"
)

// CreateCommand asks for a new root (no parent_id) or reply.
type CreateCommand struct {
	CommandID       string `json:"command_id"`
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name,omitempty"`
	CommentableType string `json:"commentable_type,omitempty"`
	CommentableID   string `json:"commentable_id,omitempty"`
	ParentID        string `json:"parent_id,omitempty"`
	Content         string `json:"content"`
}

// DeleteCommand asks for a comment to be removed.
type DeleteCommand struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	Admin     bool   `json:"admin,omitempty"`
	CommentID string `json:"comment_id"`
}

type outcome int

const (
	ack outcome = iota
	retry
	drop
)

type Consumer struct {
	Log     *zap.Logger
	JS      nats.JetStreamContext
	Service *service.Service
	Dedup   idempotency.Store

	MaxDeliver int
	BatchSize  int
}

func NewConsumer(log *zap.Logger, nc *nats.Conn, svc *service.Service, dedup idempotency.Store) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Consumer{Log: log, JS: js, Service: svc, Dedup: dedup, MaxDeliver: 8, BatchSize: 50}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := events.EnsureStream(ctx, c.JS); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	sub, err := c.JS.PullSubscribe(commandsFilter, durableName)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.Log.Info("command consumer started", zap.String("subject", commandsFilter))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("command fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			c.handleMsg(ctx, m)
		}
	}
}

func (c *Consumer) handleMsg(ctx context.Context, m *nats.Msg) {
	numDelivered := uint64(1)
	if md, err := m.Metadata(); err == nil && md != nil {
		numDelivered = md.NumDelivered
	}

	if c.MaxDeliver > 0 && int(numDelivered) > c.MaxDeliver {
		if err := c.publishDLQ(m.Subject, m.Data, fmt.Sprintf("max deliveries exceeded: %d", numDelivered)); err != nil {
			c.Log.Warn("dlq publish failed", zap.String("subject", m.Subject), zap.Error(err))
		}
		_ = m.Ack()
		return
	}

	switch out, err := c.handle(ctx, m.Subject, m.Data); out {
	case retry:
		c.Log.Warn("command will be retried",
			zap.String("subject", m.Subject), zap.Uint64("attempt", numDelivered), zap.Error(err))
		_ = m.NakWithDelay(backoffDelay(numDelivered))
	case drop:
		c.Log.Error("command dropped", zap.String("subject", m.Subject), zap.Error(err))
		_ = m.Term()
	default:
		_ = m.Ack()
	}
}

// handle applies one command and says what to do with its message.
func (c *Consumer) handle(ctx context.Context, subject string, data []byte) (outcome, error) {
	var (
		commandID string
		apply     func() error
	)
	switch subject {
	case SubjectCreate:
		var cmd CreateCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return drop, fmt.Errorf("decode create: %w", err)
		}
		in, err := cmd.newComment()
		if err != nil {
			return drop, err
		}
		commandID = cmd.CommandID
		apply = func() error {
			n, err := c.Service.Create(ctx, in)
			if err == nil {
				c.Log.Info("create command applied", zap.String("command_id", commandID), zap.Stringer("comment_id", n.ID))
			}
			return err
		}
	case SubjectDelete:
		var cmd DeleteCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return drop, fmt.Errorf("decode delete: %w", err)
		}
		id, err := thread.ParseID(cmd.CommentID)
		if err != nil {
			return drop, fmt.Errorf("comment_id %q: %w", cmd.CommentID, err)
		}
		commandID = cmd.CommandID
		apply = func() error {
			_, err := c.Service.Delete(ctx, id, service.Actor{UserID: cmd.UserID, Admin: cmd.Admin})
			return err
		}
	default:
		return drop, fmt.Errorf("unknown subject %s", subject)
	}

	if strings.TrimSpace(commandID) == "" {
		return drop, errors.New("command_id is required")
	}
	dup, err := c.Dedup.Check(ctx, commandID)
	if err != nil {
		return retry, fmt.Errorf("idempotency check: %w", err)
	}
	if dup {
		c.Log.Debug("duplicate command skipped", zap.String("command_id", commandID))
		return ack, nil
	}

	err = apply()
	out := classify(err)
	if out == retry {
		if ferr := c.Dedup.Forget(ctx, commandID); ferr != nil {
			c.Log.Warn("idempotency forget failed", zap.String("command_id", commandID), zap.Error(ferr))
		}
	}
	if out == ack && err != nil {
		c.Log.Info("command rejected", zap.String("command_id", commandID), zap.Error(err))
	}
	return out, err
}

// classify decides whether a failed command is worth another delivery.
// Rejections by the domain are final and acknowledged.
func classify(err error) outcome {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, thread.ErrIntegrity):
		return drop
	case errors.Is(err, thread.ErrNotFound),
		errors.Is(err, thread.ErrDuplicate),
		errors.Is(err, thread.ErrParentDeleted),
		errors.Is(err, thread.ErrInvalid),
		errors.Is(err, service.ErrForbidden):
		return ack
	default:
		return retry
	}
}

func (cmd CreateCommand) newComment() (service.NewComment, error) {
	in := service.NewComment{
		Commentable: thread.Commentable{Type: cmd.CommentableType, ID: cmd.CommentableID},
		Author:      thread.Author{ID: cmd.UserID, Name: cmd.UserName},
		Content:     cmd.Content,
	}
	if cmd.ParentID != "" {
		id, err := thread.ParseID(cmd.ParentID)
		if err != nil {
			return service.NewComment{}, fmt.Errorf("parent_id %q: %w", cmd.ParentID, err)
		}
		in.ParentID = &id
	}
	return in, nil
}

func (c *Consumer) publishDLQ(subject string, data []byte, reason string) error {
	msg := map[string]any{"subject": subject, "reason": reason, "payload": json.RawMessage(data)}
	if !json.Valid(data) {
		msg["payload"] = string(data)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.JS.Publish(SubjectDLQ, b)
	return err
}
