package httpclient

import "errors"

// Sentinel errors for HTTP statuses the sync core reacts to. Everything
// else surfaces as a wrapped generic error.
var (
	// ErrUnauthorized covers 401 and 403 responses.
	ErrUnauthorized = errors.New("server rejected credentials")

	// ErrPreconditionFailed covers 412 responses to conditional writes:
	// the resource changed since its etag was obtained.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrObjectNotFound covers 404 responses.
	ErrObjectNotFound = errors.New("object not found")

	// ErrMalformedResponse marks a response body that could not be parsed.
	ErrMalformedResponse = errors.New("malformed server response")
)
