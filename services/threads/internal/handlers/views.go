package handlers

import (
	"time"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// commentView is one comment as sent to clients. Ids are strings so that
// JavaScript clients keep full precision.
type commentView struct {
	ID           string              `json:"id"`
	ParentID     string              `json:"parent_id,omitempty"`
	ThreadRootID string              `json:"thread_root_id"`
	Commentable  *thread.Commentable `json:"commentable,omitempty"`
	Author       *thread.Author      `json:"author,omitempty"`
	Content      string              `json:"content,omitempty"`
	Deleted      bool                `json:"deleted"`
	CreatedAt    *time.Time          `json:"created_at,omitempty"`
}

func newCommentView(n thread.Node) commentView {
	v := commentView{
		ID:           n.ID.String(),
		ThreadRootID: n.ThreadRootID.String(),
		Deleted:      n.Deleted,
	}
	if n.ParentID != nil {
		v.ParentID = n.ParentID.String()
	}
	c, a, at := n.Commentable, n.Author, n.CreatedAt
	v.Commentable = &c
	if !n.Deleted {
		v.Author = &a
		v.Content = n.Content
		v.CreatedAt = &at
	}
	return v
}

// threadNodeView is a decorated node with its visible replies. Nodes that
// are not visible themselves are rendered as placeholders.
type threadNodeView struct {
	ID                 string            `json:"id"`
	ParentID           string            `json:"parent_id,omitempty"`
	Visible            bool              `json:"visible"`
	Author             *thread.Author    `json:"author,omitempty"`
	Content            string            `json:"content,omitempty"`
	CreatedAt          *time.Time        `json:"created_at,omitempty"`
	VisibleDescendants int               `json:"visible_descendants"`
	Replies            []*threadNodeView `json:"replies"`
}

func newThreadNodeView(d *thread.Decorated) *threadNodeView {
	v := &threadNodeView{
		ID:                 d.ID.String(),
		Visible:            d.IsVisible(),
		VisibleDescendants: d.VisibleDescendantCount(),
	}
	if d.ParentID != nil {
		v.ParentID = d.ParentID.String()
	}
	if v.Visible {
		a, at := d.Author, d.CreatedAt
		v.Author = &a
		v.Content = d.Content
		v.CreatedAt = &at
	}
	replies := d.VisibleReplies()
	v.Replies = make([]*threadNodeView, 0, len(replies))
	for _, r := range replies {
		v.Replies = append(v.Replies, newThreadNodeView(r))
	}
	return v
}

type threadResponse struct {
	ThreadRootID string             `json:"thread_root_id"`
	Commentable  thread.Commentable `json:"commentable"`
	Focus        *threadNodeView    `json:"focus"`
}

type rootsResponse struct {
	Comments []commentView `json:"comments"`
}

type removalResponse struct {
	ThreadRootID string   `json:"thread_root_id"`
	Removed      []string `json:"removed"`
	SoftDeleted  string   `json:"soft_deleted,omitempty"`
}

func newRemovalResponse(r thread.Removal) removalResponse {
	out := removalResponse{ThreadRootID: r.ThreadRootID.String(), Removed: make([]string, len(r.Removed))}
	for i, id := range r.Removed {
		out.Removed[i] = id.String()
	}
	if r.SoftDeleted != nil {
		out.SoftDeleted = r.SoftDeleted.String()
	}
	return out
}

type integrityResponse struct {
	ThreadRootID string `json:"thread_root_id"`
	Nodes        int    `json:"nodes"`
	Valid        bool   `json:"valid"`
	Problem      string `json:"problem,omitempty"`
}
