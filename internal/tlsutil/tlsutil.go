package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites are the only TLS 1.2 cipher suites offered. TLS 1.3 suites are
// not configurable and always AEAD.
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// ServerConfig returns the TLS settings for the dashboard API listener:
// TLS 1.2 minimum, AEAD suites only, modern curves first.
func ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CipherSuites:     append([]uint16(nil), aeadSuites...),
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}
}

// ClientConfig returns TLS settings for outbound probes. insecure skips
// certificate verification and is meant for self-signed local deployments.
func ClientConfig(insecure bool) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		CipherSuites:       append([]uint16(nil), aeadSuites...),
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in via --insecure
	}
}

// HTTPClient returns a client whose transport uses cfg for https targets.
func HTTPClient(timeout time.Duration, cfg *tls.Config) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: cfg,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
