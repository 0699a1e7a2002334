package httpclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

// PropfindResponse holds the properties the session layer cares about,
// keyed by resource href where more than one resource comes back.
type PropfindResponse struct {
	CurrentUserPrincipal string
	CalendarHomeSet      string
	Resources            map[string]ResourceProps
}

// ResourceProps holds per-resource properties from a multistatus response.
type ResourceProps struct {
	IsCalendar  bool
	DisplayName string
	Etag        string
}

type propfindXML struct {
	XMLName xml.Name `xml:"DAV: propfind"`
	XMLDAV  string   `xml:"xmlns:D,attr"`
	XMLCal  string   `xml:"xmlns:C,attr"`
	Prop    propXML  `xml:"D:prop"`
}

type propXML struct {
	ResourceType         *xml.Name `xml:"D:resourcetype,omitempty"`
	DisplayName          *xml.Name `xml:"D:displayname,omitempty"`
	CurrentUserPrincipal *xml.Name `xml:"D:current-user-principal,omitempty"`
	CalendarHomeSet      *xml.Name `xml:"C:calendar-home-set,omitempty"`
	Getetag              *xml.Name `xml:"D:getetag,omitempty"`
}

type multistatusXML struct {
	XMLName  xml.Name      `xml:"DAV: multistatus"`
	Response []responseXML `xml:"DAV: response"`
}

type responseXML struct {
	Href     string        `xml:"DAV: href"`
	Propstat []propstatXML `xml:"DAV: propstat"`
}

type propstatXML struct {
	Prop   propertyXML `xml:"DAV: prop"`
	Status string      `xml:"DAV: status"`
}

type propertyXML struct {
	ResourceType         resourceTypeXML `xml:"DAV: resourcetype"`
	DisplayName          string          `xml:"DAV: displayname"`
	CurrentUserPrincipal string          `xml:"DAV: current-user-principal>href"`
	CalendarHomeSet      string          `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set>href"`
	Getetag              string          `xml:"DAV: getetag"`
}

type resourceTypeXML struct {
	Calendar *xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

// DoPROPFIND performs a PROPFIND request against urlStr with the given
// depth, asking for the named properties.
func (c *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, props ...string) (*PropfindResponse, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", props)

	body := buildPropfindXML(props...)

	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve URL %q: %w", urlStr, err)
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", resolvedURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", fmt.Sprintf("%d", depth))
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		c.logger.Debug("unexpected response status",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, classifyStatus(resp.StatusCode)
	}

	var multiStatus multistatusXML
	if err := xml.NewDecoder(resp.Body).Decode(&multiStatus); err != nil {
		c.logger.Debug("failed to parse XML response", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result := PropfindResponse{Resources: make(map[string]ResourceProps)}
	for _, r := range multiStatus.Response {
		for _, ps := range r.Propstat {
			if !strings.Contains(ps.Status, "200") {
				continue
			}
			props := ps.Prop
			if props.CurrentUserPrincipal != "" {
				result.CurrentUserPrincipal = props.CurrentUserPrincipal
			}
			if props.CalendarHomeSet != "" {
				result.CalendarHomeSet = props.CalendarHomeSet
			}
			result.Resources[r.Href] = ResourceProps{
				IsCalendar:  props.ResourceType.Calendar != nil,
				DisplayName: props.DisplayName,
				Etag:        props.Getetag,
			}
		}
	}

	c.logger.Debug("PROPFIND request complete",
		"resource_count", len(result.Resources),
		"principal_url", result.CurrentUserPrincipal != "",
		"home_set", result.CalendarHomeSet != "")
	return &result, nil
}

func buildPropfindXML(props ...string) []byte {
	propfind := propfindXML{
		XMLDAV: "DAV:",
		XMLCal: "urn:ietf:params:xml:ns:caldav",
	}

	for _, prop := range props {
		switch prop {
		case "resourcetype":
			propfind.Prop.ResourceType = &xml.Name{Space: "DAV:", Local: "resourcetype"}
		case "displayname":
			propfind.Prop.DisplayName = &xml.Name{Space: "DAV:", Local: "displayname"}
		case "current-user-principal":
			propfind.Prop.CurrentUserPrincipal = &xml.Name{Space: "DAV:", Local: "current-user-principal"}
		case "calendar-home-set":
			propfind.Prop.CalendarHomeSet = &xml.Name{Space: "urn:ietf:params:xml:ns:caldav", Local: "calendar-home-set"}
		case "getetag":
			propfind.Prop.Getetag = &xml.Name{Space: "DAV:", Local: "getetag"}
		}
	}

	body, err := xml.Marshal(propfind)
	if err != nil {
		return []byte{}
	}
	return body
}
