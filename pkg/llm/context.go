package llm

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey contextKey = "llm_request_id"

	requestIDHeader = "X-Request-Id"
)

// WithRequestID tags outgoing gateway requests made with ctx.
// Interviews use the conversation id so provider logs can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// contextAwareTransport copies the request id from the request context into a header.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id, ok := RequestIDFromContext(req.Context()); ok {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: &contextAwareTransport{base: http.DefaultTransport}}
}
