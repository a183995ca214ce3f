// Package transport provides HTTP transports for talking to the POS server.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// ForURL returns the round tripper for a POS base URL.
// Stations on the shop LAN talk plain HTTP; servers published through a
// hosted reverse proxy are reached over TLS with a browser fingerprint,
// since those proxies throttle Go's default ClientHello.
func ForURL(rawURL string, timeout time.Duration) http.RoundTripper {
	u, err := url.Parse(rawURL)
	if err == nil && strings.EqualFold(u.Scheme, "https") {
		return NewChromeTransport(timeout)
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Supports both HTTP/2 and HTTP/1.1 based on ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{h2: h2Transport, h1: h1Transport}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
// Requests with a body are only retried on h1 when the body can be replayed.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
