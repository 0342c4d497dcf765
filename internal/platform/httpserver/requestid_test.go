package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"missing", "", false},
		{"well formed", "req-42_a.b:c", true},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestIDMiddleware("")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header["X-Request-Id"] = []string{tc.incoming}
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if seen == "" || rr.Header().Get("X-Request-Id") != seen {
				t.Fatalf("context id %q, header %q", seen, rr.Header().Get("X-Request-Id"))
			}
			if tc.keep != (seen == tc.incoming) {
				t.Fatalf("keep=%v but got %q for %q", tc.keep, seen, tc.incoming)
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "cmd-1")
	if got := RequestIDFromContext(ctx); got != "cmd-1" {
		t.Fatalf("got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
