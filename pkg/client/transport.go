package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DialTimeout specifies default maximum connection initialization time.
const DialTimeout = 3 * time.Second

// KeepAlive specifies default interval between keep-alive probes.
const KeepAlive = 10 * time.Second

// TLSHandshakeTimeout specifies default timeout of TLS handshake.
const TLSHandshakeTimeout = 5 * time.Second

// ResponseHeaderTimeout specifies default amount of time to wait for a server's response headers.
const ResponseHeaderTimeout = 20 * time.Second

// MaxConnectionsPerHost specifies default maximum number of open connections to a host.
const MaxConnectionsPerHost = 32

// HTTP2PingTimeout specifies default timeouts of the HTTP2Transport health checks.
const HTTP2PingTimeout = 3 * time.Second

// TransportConfig configures NewTransport and NewHTTP2Transport.
type TransportConfig struct {
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	MaxConnectionsPerHost int
	// Insecure disables verification of the server certificate.
	Insecure bool
}

// DefaultTransportConfig returns limits used by DefaultTransport and HTTP2Transport.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:           DialTimeout,
		KeepAlive:             KeepAlive,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: ResponseHeaderTimeout,
		MaxConnectionsPerHost: MaxConnectionsPerHost,
	}
}

// DefaultTransport default transport with reasonable limits.
func DefaultTransport() http.RoundTripper {
	return NewTransport(DefaultTransportConfig())
}

// HTTP2Transport forces HTTP2 protocol.
func HTTP2Transport() http.RoundTripper {
	return NewHTTP2Transport(DefaultTransportConfig())
}

// NewTransport creates a transport, HTTP2 is preferred, the proxy is taken from the environment.
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := cfg.dialer()
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       cfg.tlsConfig(),
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxConnsPerHost:       cfg.MaxConnectionsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxConnectionsPerHost,
	}
}

// NewHTTP2Transport creates a transport speaking only HTTP2 over TLS.
func NewHTTP2Transport(cfg TransportConfig) *http2.Transport {
	dialer := cfg.dialer()
	return &http2.Transport{
		TLSClientConfig: cfg.tlsConfig(),
		DialTLS: func(network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
			return tls.DialWithDialer(dialer, network, addr, tlsCfg)
		},
		ReadIdleTimeout:  HTTP2PingTimeout,
		PingTimeout:      HTTP2PingTimeout,
		WriteByteTimeout: HTTP2PingTimeout,
	}
}

// Dialer - default dialer.
func Dialer() *net.Dialer {
	return DefaultTransportConfig().dialer()
}

func (c TransportConfig) dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   c.DialTimeout,
		KeepAlive: c.KeepAlive,
	}
}

func (c TransportConfig) tlsConfig() *tls.Config {
	if !c.Insecure {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec
}
