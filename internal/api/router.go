package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type handler struct {
	log    *slog.Logger
	target Pinger
}

func NewRouter(log *slog.Logger, target Pinger) http.Handler {
	h := handler{
		log:    log,
		target: target,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)

	return r
}
