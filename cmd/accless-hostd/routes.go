package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/faasm/accless-attest/internal/httperr"
)

// Paths accless-hostd exposes on its internal status surface. This is
// operator-facing only; the TEE never reaches it, since the TEE side only
// ever speaks the vsock protocol handled in main.go.
const (
	pathHealthz = "/healthz"
	pathStatus  = "/status"
)

type statusResponse struct {
	AttestationServiceURL string `json:"attestation_service_url"`
	VSOCKPort             uint32 `json:"vsock_port"`
}

func newStatusRouter(asURL string, vsockPort uint32, debug bool) *chi.Mux {
	r := chi.NewRouter()
	if debug {
		r.Use(middleware.Logger)
	}

	r.Get(pathHealthz, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get(pathStatus, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statusResponse{
			AttestationServiceURL: asURL,
			VSOCKPort:             vsockPort,
		}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(httperr.New(err.Error()))
		}
	})

	return r
}
