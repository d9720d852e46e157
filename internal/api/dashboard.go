package api

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// WithDashboard serves a built dashboard from webDir alongside the API.
// Requests under /api/ go to apiHandler; any other path that is not a file
// falls back to index.html so client-side routes resolve.
func WithDashboard(apiHandler http.Handler, webDir string) http.Handler {
	assets := os.DirFS(webDir)
	fileServer := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			apiHandler.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name != "" && isFile(assets, name) {
			fileServer.ServeHTTP(w, r)
			return
		}
		serveDashboardIndex(w, r, assets)
	})
}

func serveDashboardIndex(w http.ResponseWriter, r *http.Request, assets fs.FS) {
	index, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(index)
}

func isFile(assets fs.FS, name string) bool {
	info, err := fs.Stat(assets, name)
	return err == nil && !info.IsDir()
}
