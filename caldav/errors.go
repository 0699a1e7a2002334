package caldav

import (
	"errors"
	"fmt"

	"github.com/vtekvtek/caldav-eventsync/internal/httpclient"
)

// FailureKind tags an operation failure so callers can decide whether to
// surface, log or retry without parsing message text.
type FailureKind string

const (
	KindMissingCredentials   FailureKind = "MissingCredentials"
	KindAuthenticationFailed FailureKind = "AuthenticationFailed"
	KindCalendarNotFound     FailureKind = "CalendarNotFound"
	KindNetworkError         FailureKind = "NetworkError"
	KindMissingIdentifier    FailureKind = "MissingIdentifier"
	KindNotFound             FailureKind = "NotFound"
	KindConflict             FailureKind = "Conflict"
	KindMalformed            FailureKind = "Malformed"
)

// Failure is the error type every sync operation returns. The core never
// retries internally; retry policy belongs to the caller.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func newFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure unwraps err into a *Failure if it carries one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classify converts a transport-layer error into a tagged Failure. Errors
// that are already tagged pass through unchanged; everything unrecognized
// counts as a network error, timeouts included.
func classify(err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	switch {
	case errors.Is(err, httpclient.ErrUnauthorized):
		return newFailure(KindAuthenticationFailed, "%v", err)
	case errors.Is(err, httpclient.ErrPreconditionFailed):
		return newFailure(KindConflict, "remote copy changed since it was located: %v", err)
	case errors.Is(err, httpclient.ErrMalformedResponse):
		return newFailure(KindMalformed, "%v", err)
	}
	return newFailure(KindNetworkError, "%v", err)
}
