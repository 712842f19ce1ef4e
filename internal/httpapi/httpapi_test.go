package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCertProvider struct{ digest string }

func (f fakeCertProvider) CertDigest() string { return f.digest }

func TestCertHash_ReturnsBase64OfHexDigest(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	hexDigest := hex.EncodeToString(raw)

	r := NewRouter(fakeCertProvider{digest: hexDigest}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/cert-hash", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var body certHashResponse
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Equal(t, "sha-256", body.Algorithm)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), body.Hash)
}

func TestCertHash_CASignedReturnsNotFound(t *testing.T) {
	r := NewRouter(fakeCertProvider{digest: ""}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/cert-hash", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertHash_RecoversFromPanic(t *testing.T) {
	r := NewRouter(panickingCertProvider{}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/cert-hash", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panickingCertProvider struct{}

func (panickingCertProvider) CertDigest() string { panic("boom") }
