// Package uistatic serves the embedded single page client.
package uistatic

import (
	"bytes"
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed all:app
var distFS embed.FS

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".svg":  "image/svg+xml",
}

// Handler serves assets from the embedded app directory. Paths that do not
// name an asset fall back to index.html, except under /v1/ where a missing
// API route stays a 404.
func Handler() http.Handler {
	sub, err := fs.Sub(distFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name == "v1" || strings.HasPrefix(name, "v1/") {
			http.NotFound(w, r)
			return
		}
		if name == "." || name == "" || name == "index.html" {
			serveFile(w, r, sub, "index.html")
			return
		}
		if info, err := fs.Stat(sub, name); err == nil && !info.IsDir() {
			serveFile(w, r, sub, name)
			return
		}
		serveFile(w, r, sub, "index.html")
	})
}

func serveFile(w http.ResponseWriter, r *http.Request, filesystem fs.FS, name string) {
	body, err := fs.ReadFile(filesystem, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	header := w.Header()
	header.Set("Content-Type", contentTypeFor(name))
	header.Set("X-Content-Type-Options", "nosniff")
	// The page and its scripts ship inside the binary, so a cached copy can
	// outlive a deploy. Browsers must revalidate every asset.
	header.Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(body))
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if value, ok := contentTypes[ext]; ok {
		return value
	}
	if value := mime.TypeByExtension(ext); value != "" {
		return value
	}
	return "application/octet-stream"
}
