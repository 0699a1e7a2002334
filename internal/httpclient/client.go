package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// HttpClientWrapper wraps http.Client with the WebDAV verbs the sync core
// issues against a CalDAV server.
type HttpClientWrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*PropfindResponse, error)
	DoREPORT(ctx context.Context, url string, depth int, query interface{}) (*ReportResponse, error)
	DoPUT(ctx context.Context, url string, etag string, data []byte) (newEtag string, err error)
	DoDELETE(ctx context.Context, url string, etag string) error
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// NewHttpClientWrapper creates a new client wrapper. A nil logger disables
// request tracing.
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}

// classifyStatus maps an unexpected HTTP status to one of the sentinel
// errors, or to a generic error for statuses the core has no special
// handling for.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, code)
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusNotFound:
		return ErrObjectNotFound
	}
	return fmt.Errorf("unexpected status code: %d", code)
}
