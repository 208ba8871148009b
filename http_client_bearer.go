package main

import (
	"net/http"
	"time"
)

// bearerTransport adds an Authorization header to every request sent to
// the table detector service.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

// RoundTrip implements http.RoundTripper.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.token == "" {
		return base.RoundTrip(req)
	}

	// Clone the request to avoid side effects
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.token)
	return base.RoundTrip(reqClone)
}

// newDetectorHTTPClient returns a client for the table detector. An empty
// token sends requests unauthenticated.
func newDetectorHTTPClient(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &bearerTransport{base: http.DefaultTransport, token: token},
	}
}
