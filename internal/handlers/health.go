package handlers

import "net/http"

// handleHealth reports liveness. It touches the database so an unreachable
// DB surfaces as a failing health check rather than a silent 200.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, "ok", nil)
}
