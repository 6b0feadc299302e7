// Package transport builds the HTTP transports the storefront client dials with.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// TLSTransport trusts an extra certificate authority on top of the system pool.
type TLSTransport struct {
	caFileName string
}

// NewTLSTransport creates a TLSTransport that trusts the PEM bundle in caFileName.
func NewTLSTransport(caFileName string) *TLSTransport {
	return &TLSTransport{
		caFileName: caFileName,
	}
}

// RoundTripper loads the CA bundle and returns a transport verifying against it.
func (t *TLSTransport) RoundTripper() (http.RoundTripper, error) {
	pem, err := os.ReadFile(t.caFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to load CA certificates from %s", t.caFileName)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	return base, nil
}

// PlainTransport uses the default transport and system trust store.
type PlainTransport struct{}

// NewPlainTransport creates a new PlainTransport instance.
func NewPlainTransport() *PlainTransport {
	return &PlainTransport{}
}

func (t *PlainTransport) RoundTripper() (http.RoundTripper, error) {
	return http.DefaultTransport.(*http.Transport).Clone(), nil
}

// New picks a TLS transport when caFileName is set, a plain one otherwise.
func New(caFileName string) (http.RoundTripper, error) {
	if caFileName != "" {
		return NewTLSTransport(caFileName).RoundTripper()
	}
	return NewPlainTransport().RoundTripper()
}
