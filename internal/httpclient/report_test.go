package httpclient

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestParseReportResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []ReportObject
	}{
		{
			name: "D-prefixed namespaces",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/alice/family/evt-1.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>"v1"</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR
BEGIN:VEVENT
UID:evt-1
END:VEVENT
END:VCALENDAR</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`,
			want: []ReportObject{{
				Href: "/calendars/alice/family/evt-1.ics",
				Etag: `"v1"`,
				CalendarData: `BEGIN:VCALENDAR
BEGIN:VEVENT
UID:evt-1
END:VEVENT
END:VCALENDAR`,
			}},
		},
		{
			name: "lowercase prefixes",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/cal/a.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"a"</d:getetag>
        <cal:calendar-data>BEGIN:VCALENDAR
END:VCALENDAR</cal:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/cal/b.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"b"</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`,
			want: []ReportObject{
				{Href: "/cal/a.ics", Etag: `"a"`, CalendarData: "BEGIN:VCALENDAR\nEND:VCALENDAR"},
				{Href: "/cal/b.ics", Etag: `"b"`},
			},
		},
		{
			name: "default namespace without prefix",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:">
  <response>
    <href>/cal/c.ics</href>
    <propstat>
      <prop><getetag>"c"</getetag></prop>
      <status>HTTP/1.1 200 OK</status>
    </propstat>
  </response>
</multistatus>`,
			want: []ReportObject{{Href: "/cal/c.ics", Etag: `"c"`}},
		},
		{
			name: "failed propstat ignored",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/cal/d.ics</D:href>
    <D:propstat>
      <D:prop><D:getetag/></D:prop>
      <D:status>HTTP/1.1 404 Not Found</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`,
			want: []ReportObject{{Href: "/cal/d.ics"}},
		},
		{
			name: "response without href skipped",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:propstat>
      <D:prop><D:getetag>"x"</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`,
			want: nil,
		},
		{
			name: "empty multistatus",
			body: `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:"/>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReportResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("parseReportResponse() error = %v", err)
			}
			if len(got.Objects) != len(tt.want) {
				t.Fatalf("objects = %d, want %d", len(got.Objects), len(tt.want))
			}
			for i, want := range tt.want {
				obj := got.Objects[i]
				if obj.Href != want.Href {
					t.Errorf("object %d href = %q, want %q", i, obj.Href, want.Href)
				}
				if obj.Etag != want.Etag {
					t.Errorf("object %d etag = %q, want %q", i, obj.Etag, want.Etag)
				}
				if strings.TrimSpace(obj.CalendarData) != strings.TrimSpace(want.CalendarData) {
					t.Errorf("object %d calendar-data = %q, want %q", i, obj.CalendarData, want.CalendarData)
				}
			}
		})
	}
}

func TestParseReportResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not xml", "plain text"},
		{"truncated", `<D:multistatus xmlns:D="DAV:"><D:response>`},
		{"wrong root", `<?xml version="1.0"?><something/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReportResponse([]byte(tt.body))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("parseReportResponse() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

type reportQuery struct {
	XMLName xml.Name `xml:"C:calendar-query"`
	XMLNSC  string   `xml:"xmlns:C,attr"`
}

func testQuery() reportQuery {
	return reportQuery{XMLNSC: "urn:ietf:params:xml:ns:caldav"}
}

func TestDoREPORTRequestShape(t *testing.T) {
	const multistatus = `<?xml version="1.0" encoding="UTF-8"?>
<D:multistatus xmlns:D="DAV:"/>`

	transport := &mockTransport{response: xmlResponse(http.StatusMultiStatus, multistatus)}
	wrapper := newTestWrapper(t, transport)

	resp, err := wrapper.DoREPORT(context.Background(), "/calendars/alice/family/", 1, testQuery())
	if err != nil {
		t.Fatalf("DoREPORT() error = %v", err)
	}
	if len(resp.Objects) != 0 {
		t.Errorf("objects = %d, want 0", len(resp.Objects))
	}

	req := transport.lastReq
	if req.Method != "REPORT" {
		t.Errorf("method = %q, want REPORT", req.Method)
	}
	if depth := req.Header.Get("Depth"); depth != "1" {
		t.Errorf("Depth header = %q, want 1", depth)
	}
	if ct := req.Header.Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}
	body, _ := io.ReadAll(req.Body)
	if !strings.Contains(string(body), "calendar-query") {
		t.Errorf("request body = %q, missing calendar-query", body)
	}
}

func TestDoREPORTStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrObjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{response: xmlResponse(tt.status, "")}
			wrapper := newTestWrapper(t, transport)

			_, err := wrapper.DoREPORT(context.Background(), "/calendars/alice/family/", 1, testQuery())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DoREPORT() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
