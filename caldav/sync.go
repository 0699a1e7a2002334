// Package caldav implements the synchronization core: locating a calendar
// collection on a CalDAV server, finding objects by stable identifier, and
// creating, updating and deleting events under optimistic concurrency.
//
// Every operation resolves credentials, opens a fresh session, performs at
// most one mutating network request, and reports a tagged Failure on any
// error. No state survives between operations and nothing is retried
// internally.
package caldav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/mo"

	"github.com/vtekvtek/caldav-eventsync/ics"
	"github.com/vtekvtek/caldav-eventsync/internal/httpclient"
)

// AddUIDPolicy controls what Add does with a caller-supplied uid.
type AddUIDPolicy string

const (
	// AddUIDHonor keeps a caller-supplied uid, which makes Add behave as
	// an upsert-by-uid. This is the default.
	AddUIDHonor AddUIDPolicy = "honor"

	// AddUIDReject fails an Add that carries a uid; callers must go
	// through Update for existing events.
	AddUIDReject AddUIDPolicy = "reject"
)

// KindUIDNotAllowed is reported by Add under AddUIDReject when the record
// carries a uid.
const KindUIDNotAllowed FailureKind = "UIDNotAllowed"

// Options configures a Syncer.
type Options struct {
	// Logger receives debug-level request tracing. Nil disables logging.
	Logger *slog.Logger

	// Transport, when non-nil, replaces http.DefaultTransport underneath
	// the basic-auth layer.
	Transport http.RoundTripper

	// Matcher overrides the default substring object matcher.
	Matcher ObjectMatcher

	// AddUIDPolicy defaults to AddUIDHonor.
	AddUIDPolicy AddUIDPolicy
}

// Syncer exposes the four sync operations. It holds no per-calendar state;
// a CalendarConfig accompanies every call and concurrent operations are
// independent.
type Syncer struct {
	logger       *slog.Logger
	transport    http.RoundTripper
	matcher      ObjectMatcher
	addUIDPolicy AddUIDPolicy

	// openFn resolves a session for one operation. Tests swap it out.
	openFn func(ctx context.Context, cfg CalendarConfig) (*session, error)
}

// NewSyncer creates a Syncer from opts. The zero Options value is valid.
func NewSyncer(opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = substringMatcher{}
	}
	policy := opts.AddUIDPolicy
	if policy == "" {
		policy = AddUIDHonor
	}
	sy := &Syncer{
		logger:       logger,
		transport:    opts.Transport,
		matcher:      matcher,
		addUIDPolicy: policy,
	}
	sy.openFn = sy.openSession
	return sy
}

// LookupResult reports whether an event exists and, when it does, where.
type LookupResult struct {
	Found bool   `json:"found"`
	UID   string `json:"uid,omitempty"`
	Href  string `json:"address,omitempty"`
}

// AddResult carries the identifier assigned to a created event and its
// address under the collection.
type AddResult struct {
	UID  string `json:"uid"`
	Href string `json:"address"`
}

// UpdateResult carries the identifier and address of an updated event.
type UpdateResult struct {
	UID  string `json:"uid"`
	Href string `json:"address"`
}

// DeleteResult reports whether anything was actually removed. Deleting an
// event that is already gone is not an error.
type DeleteResult struct {
	UID     string `json:"uid"`
	Deleted bool   `json:"deleted"`
}

// Lookup finds an event by uid or, as a fallback for callers that never
// captured one, by title. It never mutates server state, and absence is a
// successful result with Found false.
func (sy *Syncer) Lookup(ctx context.Context, cfg CalendarConfig, uid, title string) (LookupResult, error) {
	if uid == "" && title == "" {
		return LookupResult{}, newFailure(KindMissingIdentifier, "lookup requires a uid or a title")
	}

	sess, err := sy.openFn(ctx, cfg)
	if err != nil {
		return LookupResult{}, err
	}

	ref, err := sy.locate(ctx, sess, uid, title)
	if err != nil {
		return LookupResult{}, err
	}

	obj, found := ref.Get()
	if !found {
		return LookupResult{Found: false}, nil
	}
	return LookupResult{Found: true, UID: obj.UID, Href: obj.Href}, nil
}

// Add encodes the record and writes it to a new address under the
// collection. A uid is assigned when the record has none; the returned uid
// is the event's permanent identifier either way. The single PUT carries
// no precondition: a collision on a generated uid is treated as
// astronomically unlikely rather than defended against, and a
// caller-supplied uid under AddUIDHonor makes the Add an upsert.
func (sy *Syncer) Add(ctx context.Context, cfg CalendarConfig, rec ics.EventRecord) (AddResult, error) {
	if rec.UID != "" && sy.addUIDPolicy == AddUIDReject {
		return AddResult{}, newFailure(KindUIDNotAllowed, "add does not accept a caller-supplied uid")
	}

	sess, err := sy.openFn(ctx, cfg)
	if err != nil {
		return AddResult{}, err
	}

	uid, body, err := ics.Encode(rec)
	if err != nil {
		return AddResult{}, newFailure(KindMalformed, "%v", err)
	}

	objectURL, err := sess.objectURL(uid)
	if err != nil {
		return AddResult{}, newFailure(KindNetworkError, "%v", err)
	}

	if _, err := sess.httpClient.DoPUT(ctx, objectURL, "", []byte(body)); err != nil {
		return AddResult{}, classify(err)
	}

	sy.logger.Info("event created", "uid", uid, "href", objectURL)
	return AddResult{UID: uid, Href: objectURL}, nil
}

// Update locates the current remote copy of the event, re-encodes the
// record under its existing uid, and writes it back conditioned on the
// located etag. When the server rejects the precondition the remote copy
// changed since it was located; the operation reports Conflict and is
// never retried, because a blind retry could overwrite the intervening
// edit. The caller must re-lookup and re-decide.
func (sy *Syncer) Update(ctx context.Context, cfg CalendarConfig, rec ics.EventRecord) (UpdateResult, error) {
	if rec.UID == "" {
		return UpdateResult{}, newFailure(KindMissingIdentifier, "update requires a uid")
	}

	sess, err := sy.openFn(ctx, cfg)
	if err != nil {
		return UpdateResult{}, err
	}

	ref, err := sess.findByUID(ctx, rec.UID)
	if err != nil {
		return UpdateResult{}, err
	}
	obj, found := ref.Get()
	if !found {
		return UpdateResult{}, newFailure(KindNotFound, "no event with uid %q", rec.UID)
	}

	_, body, err := ics.Encode(rec)
	if err != nil {
		return UpdateResult{}, newFailure(KindMalformed, "%v", err)
	}

	if _, err := sess.httpClient.DoPUT(ctx, obj.Href, obj.Etag, []byte(body)); err != nil {
		return UpdateResult{}, classify(err)
	}

	sy.logger.Info("event updated", "uid", rec.UID, "href", obj.Href)
	return UpdateResult{UID: rec.UID, Href: obj.Href}, nil
}

// Delete removes the event with the given uid, conditioned on the etag it
// was located under. An absent event is a successful no-op with Deleted
// false.
func (sy *Syncer) Delete(ctx context.Context, cfg CalendarConfig, uid string) (DeleteResult, error) {
	if uid == "" {
		return DeleteResult{}, newFailure(KindMissingIdentifier, "delete requires a uid")
	}

	sess, err := sy.openFn(ctx, cfg)
	if err != nil {
		return DeleteResult{}, err
	}

	ref, err := sess.findByUID(ctx, uid)
	if err != nil {
		return DeleteResult{}, err
	}
	obj, found := ref.Get()
	if !found {
		return DeleteResult{UID: uid, Deleted: false}, nil
	}

	if err := sess.httpClient.DoDELETE(ctx, obj.Href, obj.Etag); err != nil {
		// Vanished between locate and delete: already gone, not an error.
		if errors.Is(err, httpclient.ErrObjectNotFound) {
			return DeleteResult{UID: uid, Deleted: false}, nil
		}
		return DeleteResult{}, classify(err)
	}

	sy.logger.Info("event deleted", "uid", uid, "href", obj.Href)
	return DeleteResult{UID: uid, Deleted: true}, nil
}

func (sy *Syncer) locate(ctx context.Context, sess *session, uid, title string) (mo.Option[RemoteObjectRef], error) {
	if uid != "" {
		return sess.findByUID(ctx, uid)
	}
	return sess.findByTitle(ctx, title)
}
