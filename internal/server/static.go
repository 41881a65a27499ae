package server

import (
	"net/http"
	"path"
	"strings"
)

// StaticHandler serves an export directory under prefix. Directory listings
// are refused and JSON files are served with a short cache lifetime.
func StaticHandler(prefix, dir string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		if path.Ext(r.URL.Path) == ".json" {
			w.Header().Set("Cache-Control", "public, max-age=60")
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		files.ServeHTTP(w, r)
	})
}
