package server

import (
	_ "embed"
	"net/http"
)

//go:embed web/upload.html
var uploadPageHTML []byte

// uploadPage serves the upload form embedded by the companion
// frontend in an iframe.
func uploadPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(uploadPageHTML)
}
