package egress

import (
	"context"
	"net"
	"net/http"
	"time"
)

// InstallProcessWideHook replaces http.DefaultTransport's dialer with one
// that consults f before connecting, so that any host-side HTTP traffic
// (outside the explicit virtual network proxy exposed to guests) cannot
// bypass the egress filter. Guest workers never see http.DefaultTransport
// directly; only the virtual network proxy's own client is reachable from
// inside a guest context, and that client performs its own EnforceURI call
// before dialing.
func InstallProcessWideHook(f *Filter) {
	base := &net.Dialer{Timeout: 10 * time.Second}
	http.DefaultTransport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			if err := f.EnforceURI("http://" + host + "/"); err != nil {
				return nil, err
			}
			return base.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
