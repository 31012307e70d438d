// Package handlers holds small HTTP handlers shared by bucketnav servers.
package handlers

import "net/http"

// Healthz reports liveness with a plain "ok".
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
