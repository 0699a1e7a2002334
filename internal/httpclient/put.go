package httpclient

import (
	"bytes"
	"context"
	"net/http"
)

// DoPUT writes a calendar object. When etag is non-empty the write is
// conditional: an If-Match header binds it to the version the etag came
// from, and a changed resource yields ErrPreconditionFailed.
func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr string, etag string, data []byte) (newEtag string, err error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"conditional", etag != "",
		"data_length", len(data))

	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resolvedURL.String(), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		c.logger.Debug("unexpected status code",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return "", classifyStatus(resp.StatusCode)
	}

	newEtag = resp.Header.Get("ETag")
	c.logger.Debug("PUT request complete",
		"status", resp.Status,
		"new_etag", newEtag)
	return newEtag, nil
}
