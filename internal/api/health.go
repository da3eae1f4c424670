package api

import (
	"log/slog"
	"net/http"
)

func (*handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// readyz reports whether the destination database answers a ping.
func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.target == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.target.Ping(r.Context()); err != nil {
		h.log.WarnContext(r.Context(), "Destination is not ready", slog.Any("error", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}
