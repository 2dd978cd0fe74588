package app

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"mapclient.gnet.app/internal/metrics"
)

// latencyTrackingRoundTripper wraps another RoundTripper and records the
// duration of every outgoing request in metrics.OutgoingLatency, labeled by
// URL (without query), method and status.
type latencyTrackingRoundTripper struct {
	next http.RoundTripper
}

func (rt *latencyTrackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	// The map page carries a per-load _cb query; dropping the query keeps
	// label cardinality bounded.
	safeURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	metrics.OutgoingLatency.WithLabelValues(
		safeURL,
		req.Method,
		status,
	).Observe(duration)

	return resp, err
}

// NewPooledClient returns the HTTP client shared by the point service client,
// the connectivity probe and the map page download.
//
// Configuration:
//
//   - MaxIdleConns 20 / MaxIdleConnsPerHost 10: the client talks to one
//     server, so a small pool keeps the probe, sync and rating requests on
//     warm connections.
//   - IdleConnTimeout 90s: longer than the 30s probe interval, so the probe
//     normally reuses a connection.
//   - Dial timeout 5s, TLS handshake 5s: fail fast on a dead network so the
//     monitor reports OFFLINE promptly.
//   - Client timeout: bounds the whole request, including reading the map
//     page body.
func NewPooledClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &http.Client{
		Transport: &latencyTrackingRoundTripper{next: transport},
		Timeout:   timeout,
	}
}
