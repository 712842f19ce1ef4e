package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"time"
)

// CertConfig selects how the server's TLS identity is obtained. Both of
// (CertPath, KeyPath) being set or both being empty is valid; exactly
// one being set is an error. Empty means generate a self-signed
// identity, adapted from
// internal/api.CheckTLSConfig's validation shape.
type CertConfig struct {
	CertPath string
	KeyPath  string
}

// LoadOrGenerateCert returns a tls.Certificate and, for the self-signed
// path, the SHA-256 digest of its leaf certificate that clients present
// during the handshake (spec §4.5). For CA-signed operation the chain
// is loaded from PEM files and digest is empty.
func LoadOrGenerateCert(cfg CertConfig) (tls.Certificate, string, error) {
	if cfg.CertPath == "" && cfg.KeyPath == "" {
		return generateSelfSigned()
	}
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return tls.Certificate{}, "", fmt.Errorf("transport: both cert and key paths must be set (got cert=%q, key=%q)", cfg.CertPath, cfg.KeyPath)
	}
	if _, err := os.Stat(cfg.CertPath); err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: cert file not found: %s", cfg.CertPath)
	}
	if _, err := os.Stat(cfg.KeyPath); err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: key file not found: %s", cfg.KeyPath)
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: load PEM cert/key: %w", err)
	}
	return cert, "", nil
}

func generateSelfSigned() (tls.Certificate, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "noaide-local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour * 365),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("transport: create self-signed certificate: %w", err)
	}

	digest := sha256.Sum256(der)

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}
	return cert, hex.EncodeToString(digest[:]), nil
}
