package caldav

import (
	"context"
	"io"
	"log/slog"

	"github.com/vtekvtek/caldav-eventsync/internal/httpclient"
)

// PropfindFunc is a function type for mocking PROPFIND
type PropfindFunc func(ctx context.Context, url string, depth int, props ...string) (*httpclient.PropfindResponse, error)

type putCall struct {
	url  string
	etag string
	data []byte
}

type deleteCall struct {
	url  string
	etag string
}

// Mock types for testing
type mockHTTPClient struct {
	propfindResponse *httpclient.PropfindResponse
	reportResponse   *httpclient.ReportResponse
	reportErr        error
	putEtag          string
	putErr           error
	deleteErr        error
	doPropfind       PropfindFunc

	putCalls    []putCall
	deleteCalls []deleteCall
}

func (m *mockHTTPClient) DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
	if m.doPropfind != nil {
		return m.doPropfind(ctx, url, depth, props...)
	}
	return m.propfindResponse, nil
}

func (m *mockHTTPClient) DoREPORT(ctx context.Context, url string, depth int, query interface{}) (*httpclient.ReportResponse, error) {
	if m.reportErr != nil {
		return nil, m.reportErr
	}
	if m.reportResponse != nil {
		return m.reportResponse, nil
	}
	return &httpclient.ReportResponse{}, nil
}

func (m *mockHTTPClient) DoPUT(ctx context.Context, url string, etag string, data []byte) (string, error) {
	m.putCalls = append(m.putCalls, putCall{url: url, etag: etag, data: data})
	if m.putErr != nil {
		return "", m.putErr
	}
	return m.putEtag, nil
}

func (m *mockHTTPClient) DoDELETE(ctx context.Context, url string, etag string) error {
	m.deleteCalls = append(m.deleteCalls, deleteCall{url: url, etag: etag})
	return m.deleteErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession wires a mock transport into a session on a fixed
// collection.
func newTestSession(mock *mockHTTPClient) *session {
	return &session{
		httpClient:    mock,
		collectionURL: "https://cal.example.com/calendars/user/family/",
		matcher:       substringMatcher{},
		logger:        discardLogger(),
	}
}

// newTestSyncer returns a Syncer whose session resolution is short-cut to
// the given mock, skipping credentials and discovery.
func newTestSyncer(mock *mockHTTPClient, opts Options) *Syncer {
	sy := NewSyncer(opts)
	sy.openFn = func(ctx context.Context, cfg CalendarConfig) (*session, error) {
		return newTestSession(mock), nil
	}
	return sy
}

// reportWith builds a REPORT response holding the given objects.
func reportWith(objects ...httpclient.ReportObject) *httpclient.ReportResponse {
	return &httpclient.ReportResponse{Objects: objects}
}

// eventBody builds a minimal calendar object body carrying uid and title.
func eventBody(uid, title string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:" + uid +
		"\r\nSUMMARY:" + title + "\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
}
