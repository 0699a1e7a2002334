package httpclient

import (
	"context"
	"net/http"
)

// DoDELETE removes a calendar object. A non-empty etag makes the delete
// conditional via If-Match; a changed resource yields ErrPreconditionFailed
// and an already-deleted one yields ErrObjectNotFound.
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, etag string) error {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"conditional", etag != "")

	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resolvedURL.String(), nil)
	if err != nil {
		return err
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		c.logger.Debug("unexpected status code",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return classifyStatus(resp.StatusCode)
	}

	c.logger.Debug("DELETE request complete", "status", resp.Status)
	return nil
}
