package httpclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

// ReportObject is one href/etag/body triple from a REPORT multistatus
// response.
type ReportObject struct {
	Href         string
	Etag         string
	CalendarData string
}

// ReportResponse represents a parsed CalDAV REPORT response.
type ReportResponse struct {
	Objects []ReportObject
}

// DoREPORT executes a CalDAV REPORT request. The query is marshaled to XML
// as-is; the multistatus response is parsed tolerantly, matching elements
// by local name regardless of the namespace prefixes the provider chose.
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, query interface{}) (*ReportResponse, error) {
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth,
		"query_type", fmt.Sprintf("%T", query))

	queryXML, err := xml.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal REPORT query: %w", err)
	}

	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve URL %q: %w", urlStr, err)
	}

	req, err := http.NewRequestWithContext(ctx, "REPORT", resolvedURL.String(), bytes.NewReader(queryXML))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", fmt.Sprintf("%d", depth))

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		c.logger.Debug("unexpected response status",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, classifyStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	result, err := parseReportResponse(body)
	if err != nil {
		c.logger.Debug("failed to parse response", "error", err)
		return nil, err
	}

	c.logger.Debug("REPORT request complete",
		"object_count", len(result.Objects))
	return result, nil
}

// parseReportResponse extracts href, getetag and calendar-data from each
// response element of a multistatus document. etree paths match local tags
// only, so D:href, d:href and href all resolve the same way.
func parseReportResponse(body []byte) (*ReportResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "multistatus" {
		return nil, fmt.Errorf("%w: unexpected root element", ErrMalformedResponse)
	}

	var result ReportResponse
	for _, response := range root.SelectElements("response") {
		href := response.SelectElement("href")
		if href == nil {
			continue
		}

		obj := ReportObject{Href: strings.TrimSpace(href.Text())}
		for _, propstat := range response.SelectElements("propstat") {
			status := propstat.SelectElement("status")
			if status != nil && !strings.Contains(status.Text(), "200") {
				continue
			}
			prop := propstat.SelectElement("prop")
			if prop == nil {
				continue
			}
			if etag := prop.SelectElement("getetag"); etag != nil {
				obj.Etag = strings.TrimSpace(etag.Text())
			}
			if data := prop.SelectElement("calendar-data"); data != nil {
				obj.CalendarData = data.Text()
			}
		}
		result.Objects = append(result.Objects, obj)
	}

	return &result, nil
}
