package api

import (
	_ "embed"
	"net/http"
)

//go:embed web/index.html
var indexPage []byte

// handleIndex serves the browser upload page, which drives the legacy routes.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}
