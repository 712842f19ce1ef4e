package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
)

// CertDigestProvider is the one fact this package needs from
// internal/transport, kept as a narrow interface rather than an import
// so httpapi doesn't depend on the QUIC/WebTransport stack to serve one
// JSON resource.
type CertDigestProvider interface {
	// CertDigest returns the SHA-256 hex digest of the server's
	// self-signed leaf certificate, or "" for CA-signed operation
	// (browsers validate a CA-signed chain against their trust store
	// and never need a pinned hash for it).
	CertDigest() string
}

// certHashResponse is the wire shape spec §6 names: `{algorithm:
// "sha-256", hash: <base64>}`.
type certHashResponse struct {
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
}

// certHashHandler serves GET /api/cert-hash, converting the transport's
// hex digest to the base64 encoding WebTransport's
// serverCertificateHashes expects.
func certHashHandler(certs CertDigestProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		digest := certs.CertDigest()
		if digest == "" {
			WriteError(w, http.StatusNotFound, ErrNotFound, "server is running with a CA-signed certificate; no pinned hash to present")
			return
		}
		raw, err := hex.DecodeString(digest)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "stored certificate digest is malformed")
			return
		}
		WriteJSON(w, http.StatusOK, certHashResponse{
			Algorithm: "sha-256",
			Hash:      base64.StdEncoding.EncodeToString(raw),
		})
	}
}
