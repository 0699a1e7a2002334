package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vtekvtek/caldav-eventsync/internal/httpclient"
)

// CalendarConfig identifies one calendar collection on one server. It is
// supplied per request by the caller and never persisted by the core.
type CalendarConfig struct {
	// EnvPrefix names the environment variables holding credentials:
	// <EnvPrefix>USERNAME and <EnvPrefix>PASSWORD.
	EnvPrefix string `json:"envPrefix" yaml:"env_prefix"`

	// ServerURL is the CalDAV endpoint, e.g. https://caldav.icloud.com.
	ServerURL string `json:"serverUrl" yaml:"server_url"`

	// CalendarDisplayName selects the collection by exact, case-sensitive
	// displayname match. The first match wins if duplicates exist.
	CalendarDisplayName string `json:"calendarDisplayName" yaml:"calendar_display_name"`
}

// session is an authenticated handle on one calendar collection. Sessions
// are created per operation and discarded afterwards; nothing is cached
// across requests, so credential or calendar changes take effect on the
// next call.
type session struct {
	httpClient    httpclient.HttpClientWrapper
	collectionURL string
	matcher       ObjectMatcher
	logger        *slog.Logger
}

// objectURL computes the address of the object with the given uid inside
// the session's collection.
func (s *session) objectURL(uid string) (string, error) {
	base, err := url.Parse(s.collectionURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse collection URL: %w", err)
	}
	ref, err := url.Parse(uid + ".ics")
	if err != nil {
		return "", fmt.Errorf("failed to parse object URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// openSession authenticates against cfg.ServerURL and resolves the named
// calendar collection: locate current-user-principal (direct path, then
// .well-known/caldav, then the server root), follow calendar-home-set,
// then enumerate the account's collections and select by displayname.
func (sy *Syncer) openSession(ctx context.Context, cfg CalendarConfig) (*session, error) {
	creds, err := ResolveCredentials(cfg.EnvPrefix)
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(cfg.ServerURL)
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, newFailure(KindNetworkError, "invalid server URL %q", cfg.ServerURL)
	}

	client := &http.Client{
		Transport: httpclient.NewBasicAuthTransport(creds.Username, creds.Password, sy.transport, sy.logger),
	}
	wrapper, err := httpclient.NewHttpClientWrapper(client, *baseURL, sy.logger)
	if err != nil {
		return nil, newFailure(KindNetworkError, "%v", err)
	}

	principalURL, err := findPrincipal(ctx, wrapper, baseURL)
	if err != nil {
		return nil, err
	}

	resp, err := wrapper.DoPROPFIND(ctx, principalURL, 0, "calendar-home-set")
	if err != nil {
		return nil, classify(err)
	}
	if resp.CalendarHomeSet == "" {
		return nil, newFailure(KindMalformed, "no calendar-home-set found at %s", principalURL)
	}
	calendarHome := resolveRef(principalURL, resp.CalendarHomeSet)

	resp, err = wrapper.DoPROPFIND(ctx, calendarHome, 1, "resourcetype", "displayname")
	if err != nil {
		return nil, classify(err)
	}

	var matches []string
	for href, resource := range resp.Resources {
		if resource.IsCalendar && resource.DisplayName == cfg.CalendarDisplayName {
			matches = append(matches, href)
		}
	}
	if len(matches) == 0 {
		return nil, newFailure(KindCalendarNotFound, "no calendar named %q on %s", cfg.CalendarDisplayName, cfg.ServerURL)
	}
	// Keep the selection stable across runs; map iteration order is not.
	sort.Strings(matches)
	if len(matches) > 1 {
		sy.logger.Warn("multiple calendars share a display name, using the first",
			"display_name", cfg.CalendarDisplayName,
			"selected", matches[0],
			"candidates", len(matches))
	}

	collectionURL := resolveRef(calendarHome, matches[0])
	if !strings.HasSuffix(collectionURL, "/") {
		collectionURL += "/"
	}

	sy.logger.Debug("session opened",
		"server", cfg.ServerURL,
		"calendar", cfg.CalendarDisplayName,
		"collection", collectionURL)

	return &session{
		httpClient:    wrapper,
		collectionURL: collectionURL,
		matcher:       sy.matcher,
		logger:        sy.logger,
	}, nil
}

// findPrincipal walks the candidate locations for current-user-principal.
// A credential rejection anywhere stops the walk immediately; other
// failures fall through to the next candidate.
func findPrincipal(ctx context.Context, wrapper httpclient.HttpClientWrapper, baseURL *url.URL) (string, error) {
	candidates := []string{}
	if baseURL.Path != "" && baseURL.Path != "/" {
		candidates = append(candidates, baseURL.String())
	}
	candidates = append(candidates,
		baseURL.JoinPath(".well-known", "caldav").String(),
		baseURL.JoinPath("/").String())

	var lastErr error
	for _, candidate := range candidates {
		resp, err := wrapper.DoPROPFIND(ctx, candidate, 0, "current-user-principal")
		if err != nil {
			if errors.Is(err, httpclient.ErrUnauthorized) {
				return "", classify(err)
			}
			lastErr = err
			continue
		}
		if resp.CurrentUserPrincipal != "" {
			return resolveRef(candidate, resp.CurrentUserPrincipal), nil
		}
	}
	if lastErr != nil {
		return "", classify(lastErr)
	}
	return "", newFailure(KindMalformed, "no current-user-principal found on %s", baseURL.String())
}

// resolveRef resolves a possibly relative href against the URL it came
// from. Unparseable inputs fall back to the href as-is.
func resolveRef(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(refURL).String()
}
