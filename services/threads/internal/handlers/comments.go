package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/discussion-platform/internal/platform/api"
	"github.com/example/discussion-platform/internal/platform/auth"
	"github.com/example/discussion-platform/internal/platform/httpserver"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

type createCommentRequest struct {
	Content string `json:"content"`
}

func commentID(w http.ResponseWriter, r *http.Request) (thread.ID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "comment_id"))
	id, err := thread.ParseID(raw)
	if err != nil {
		api.BadRequest(w, "INVALID_ID", "comment_id must be a positive integer", httpserver.RequestIDFromContext(r.Context()), nil)
		return 0, false
	}
	return id, true
}

func commentable(w http.ResponseWriter, r *http.Request) (thread.Commentable, bool) {
	c := thread.Commentable{
		Type: strings.TrimSpace(chi.URLParam(r, "type")),
		ID:   strings.TrimSpace(chi.URLParam(r, "id")),
	}
	if c.Type == "" || c.ID == "" {
		api.BadRequest(w, "MISSING_ID", "commentable type and id are required", httpserver.RequestIDFromContext(r.Context()), nil)
		return thread.Commentable{}, false
	}
	return c, true
}

func caller(w http.ResponseWriter, r *http.Request) (thread.Author, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", httpserver.RequestIDFromContext(r.Context()))
		return thread.Author{}, false
	}
	return thread.Author{ID: userID, Name: auth.DisplayNameFromContext(r.Context())}, true
}

func decodeContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	rid := httpserver.RequestIDFromContext(r.Context())
	var req createCommentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", rid, nil)
		return "", false
	}
	return req.Content, true
}

// ListRoots handles GET /v1/commentables/{type}/{id}/comments
func ListRoots(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := commentable(w, r)
		if !ok {
			return
		}
		roots, err := svc.Roots(r.Context(), c)
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		out := rootsResponse{Comments: make([]commentView, 0, len(roots))}
		for _, n := range roots {
			out.Comments = append(out.Comments, newCommentView(n))
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// CreateRoot handles POST /v1/commentables/{type}/{id}/comments
func CreateRoot(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		author, ok := caller(w, r)
		if !ok {
			return
		}
		c, ok := commentable(w, r)
		if !ok {
			return
		}
		content, ok := decodeContent(w, r)
		if !ok {
			return
		}
		n, err := svc.Create(r.Context(), service.NewComment{Commentable: c, Author: author, Content: content})
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, newCommentView(n))
	}
}

// CreateReply handles POST /v1/comments/{comment_id}/replies
func CreateReply(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		author, ok := caller(w, r)
		if !ok {
			return
		}
		parent, ok := commentID(w, r)
		if !ok {
			return
		}
		content, ok := decodeContent(w, r)
		if !ok {
			return
		}
		n, err := svc.Create(r.Context(), service.NewComment{ParentID: &parent, Author: author, Content: content})
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, newCommentView(n))
	}
}

// GetComment handles GET /v1/comments/{comment_id}
func GetComment(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		n, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, newCommentView(n))
	}
}

// GetThread handles GET /v1/comments/{comment_id}/thread. The response is
// the decorated subtree below the requested comment.
func GetThread(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		d, err := svc.Decorate(r.Context(), id, false, thread.NotDeleted)
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{
			ThreadRootID: d.Root().ID.String(),
			Commentable:  d.Root().Commentable,
			Focus:        newThreadNodeView(d.Focus()),
		})
	}
}

// DeleteComment handles DELETE /v1/comments/{comment_id}
func DeleteComment(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		author, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		res, err := svc.Delete(r.Context(), id, service.Actor{UserID: author.ID, Admin: auth.IsAdmin(r.Context())})
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, newRemovalResponse(res))
	}
}

// CheckThread handles GET /v1/admin/comments/{comment_id}/integrity
func CheckThread(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		rep, err := svc.Check(r.Context(), id)
		if err != nil {
			writeError(w, r, svc.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, integrityResponse{
			ThreadRootID: rep.ThreadRootID.String(),
			Nodes:        rep.Nodes,
			Valid:        rep.Problem == "",
			Problem:      rep.Problem,
		})
	}
}

// Mount registers the thread routes on r. Reads are public; writes need a
// valid bearer token and the integrity check needs an admin.
func Mount(r chi.Router, svc *service.Service, verifier auth.JWTVerifier) {
	r.Get("/v1/commentables/{type}/{id}/comments", ListRoots(svc))
	r.Get("/v1/comments/{comment_id}", GetComment(svc))
	r.Get("/v1/comments/{comment_id}/thread", GetThread(svc))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/commentables/{type}/{id}/comments", CreateRoot(svc))
		r.Post("/v1/comments/{comment_id}/replies", CreateReply(svc))
		r.Delete("/v1/comments/{comment_id}", DeleteComment(svc))
		r.With(auth.RequireAdmin).Get("/v1/admin/comments/{comment_id}/integrity", CheckThread(svc))
	})
}
