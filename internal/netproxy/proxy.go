// Package netproxy implements the host-mediated virtual network proxy
// exposed to guest contexts: a single http() method that sanitizes request
// headers, enforces the egress filter before connecting, and flattens the
// response into host-native values.
package netproxy

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelfaas/kestrel/internal/egress"
)

// connectTimeout and requestTimeout are the proxy's default connect and
// overall request timeouts.
const (
	connectTimeout = 10 * time.Second
	requestTimeout = 20 * time.Second
)

// restrictedHeaders are dropped from every outbound request regardless of
// what the guest supplies, matched case-insensitively.
var restrictedHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
}

// Response is the flattened {status, headers, body} shape returned to
// guests: multi-valued response headers collapse to their first value.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Proxy is the per-engine virtual network client. A single Proxy may be
// shared across concurrent invocations; it holds no per-call state.
type Proxy struct {
	filter *egress.Filter
	client *http.Client
}

// New constructs a Proxy that enforces filter before every connection.
func New(filter *egress.Filter) *Proxy {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	return &Proxy{
		filter: filter,
		client: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
			// Default redirect policy (follow, bounded by net/http's own
			// limit) matches "follows normal redirects".
		},
	}
}

// HTTP performs the single proxied request method exposed to guests.
// EnforceURI is applied before any connection is attempted.
func (p *Proxy) HTTP(method, rawURL string, body string, headers map[string]string) (*Response, error) {
	method = strings.ToUpper(method)
	if err := p.filter.EnforceURI(rawURL); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if method != "GET" && method != "HEAD" {
		reqBody = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequest(method, rawURL, reqBody)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		if restrictedHeaders[strings.ToLower(k)] {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	flat := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		if len(vals) > 0 {
			flat[k] = vals[0]
		}
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: flat,
		Body:    string(respBody),
	}, nil
}
