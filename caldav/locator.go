package caldav

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/samber/mo"

	"github.com/vtekvtek/caldav-eventsync/ics"
)

// RemoteObjectRef points at one calendar object on the server: its
// address, the etag the conditional update/delete must carry, and the raw
// body it was located from. Only the locator constructs these.
type RemoteObjectRef struct {
	UID     string
	Href    string
	Etag    string
	RawBody string
}

// ObjectMatcher decides whether a raw calendar object body corresponds to
// a lookup key. The default scans for exact substring markers, which is
// deliberately tolerant of provider quirks; a stricter structured parser
// can be swapped in without touching callers.
type ObjectMatcher interface {
	MatchUID(body, uid string) bool
	MatchTitle(body, title string) bool
}

type substringMatcher struct{}

func (substringMatcher) MatchUID(body, uid string) bool {
	return strings.Contains(body, "UID:"+uid)
}

func (substringMatcher) MatchTitle(body, title string) bool {
	return strings.Contains(body, "SUMMARY:"+title)
}

// findByUID locates the object carrying uid. Absence is a normal outcome,
// reported as None rather than an error.
func (s *session) findByUID(ctx context.Context, uid string) (mo.Option[RemoteObjectRef], error) {
	return s.findObject(ctx, func(body string) bool {
		return s.matcher.MatchUID(body, uid)
	})
}

// findByTitle is a degraded fallback for callers that have not yet
// captured a uid.
func (s *session) findByTitle(ctx context.Context, title string) (mo.Option[RemoteObjectRef], error) {
	return s.findObject(ctx, func(body string) bool {
		return s.matcher.MatchTitle(body, title)
	})
}

// findObject queries the collection for all event objects and scans the
// returned bodies client-side. Server-side filtering semantics differ too
// much across providers to be the sole mechanism, so the query constrains
// only the component type and the scan does the exact matching. First
// match wins.
func (s *session) findObject(ctx context.Context, match func(body string) bool) (mo.Option[RemoteObjectRef], error) {
	none := mo.None[RemoteObjectRef]()

	resp, err := s.httpClient.DoREPORT(ctx, s.collectionURL, 1, eventQuery())
	if err != nil {
		return none, classify(err)
	}

	for _, obj := range resp.Objects {
		if obj.CalendarData == "" || !match(obj.CalendarData) {
			continue
		}
		uid, _ := ics.ExtractField(obj.CalendarData, "UID")
		s.logger.Debug("object located",
			"href", obj.Href,
			"etag", obj.Etag)
		return mo.Some(RemoteObjectRef{
			UID:     uid,
			Href:    obj.Href,
			Etag:    obj.Etag,
			RawBody: obj.CalendarData,
		}), nil
	}

	return none, nil
}

// XML structs for the calendar-query REPORT body, constrained to
// VCALENDAR/VEVENT with etag and calendar data requested.
type calendarQuery struct {
	XMLName xml.Name    `xml:"urn:ietf:params:xml:ns:caldav calendar-query"`
	Prop    queryProp   `xml:"DAV: prop"`
	Filter  queryFilter `xml:"urn:ietf:params:xml:ns:caldav filter"`
}

type queryProp struct {
	GetETag      *struct{} `xml:"DAV: getetag"`
	CalendarData *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

type queryFilter struct {
	CompFilter compFilter `xml:"urn:ietf:params:xml:ns:caldav comp-filter"`
}

type compFilter struct {
	Name       string      `xml:"name,attr"`
	CompFilter *compFilter `xml:"urn:ietf:params:xml:ns:caldav comp-filter,omitempty"`
}

func eventQuery() *calendarQuery {
	return &calendarQuery{
		Prop: queryProp{
			GetETag:      &struct{}{},
			CalendarData: &struct{}{},
		},
		Filter: queryFilter{
			CompFilter: compFilter{
				Name:       "VCALENDAR",
				CompFilter: &compFilter{Name: "VEVENT"},
			},
		},
	}
}
