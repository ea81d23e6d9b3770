package uistatic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesIndexForUnknownPaths(t *testing.T) {
	h := Handler()
	for _, target := range []string{"/", "/history", "/index.html"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", target, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "<title>SupaSeed</title>") {
			t.Fatalf("GET %s did not return index", target)
		}
		if got := rr.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
			t.Fatalf("GET %s content type = %q", target, got)
		}
		if got := rr.Header().Get("Cache-Control"); got != "no-cache" {
			t.Fatalf("GET %s cache control = %q", target, got)
		}
	}
}

func TestHandlerServesAssetsWithContentType(t *testing.T) {
	tests := []struct {
		target      string
		contentType string
		contains    string
	}{
		{target: "/app.js", contentType: "text/javascript; charset=utf-8", contains: "/v1/seed/generate"},
		{target: "/app.css", contentType: "text/css; charset=utf-8"},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", tt.target, rr.Code)
		}
		if got := rr.Header().Get("Content-Type"); got != tt.contentType {
			t.Fatalf("GET %s content type = %q, want %q", tt.target, got, tt.contentType)
		}
		if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("GET %s nosniff header = %q", tt.target, got)
		}
		if tt.contains != "" && !strings.Contains(rr.Body.String(), tt.contains) {
			t.Fatalf("GET %s content missing %q", tt.target, tt.contains)
		}
	}
}

func TestHandlerLeavesUnknownAPIPathsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
