package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NewRouter builds the core's one HTTP surface: the cert-hash resource
// spec §6 calls out as the only read surface the core itself owns
// (everything else is Non-goals — "the HTTP status API as a full read
// surface" — left to external collaborators). Shaped after the
// teacher's `internal/api/router.go` (mux.Router + a middleware chain
// applied with r.Use), trimmed to the one route this core needs.
func NewRouter(certs CertDigestProvider, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(logging(log.With().Str("component", "httpapi").Logger()))
	r.Use(recovery(log))

	r.HandleFunc("/api/cert-hash", certHashHandler(certs)).Methods(http.MethodGet)

	return r
}
