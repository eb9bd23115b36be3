package tool

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/internal/domain/urlguard"
	"go.uber.org/zap"
)

const (
	webFetchMaxRedirects   = 10
	webFetchMaxResponseLen = 50000
	webFetchConnectTimeout = 10 * time.Second
	webFetchClientTimeout  = 30 * time.Second
)

// WebFetchTool fetches a URL through the SSRF-prevention policy in
// internal/domain/urlguard, re-validating every manual redirect hop.
// Grounded on original_source/src/tools/web_fetch.rs.
type WebFetchTool struct {
	policy *urlguard.Policy
	logger *zap.Logger
}

func NewWebFetchTool(policy *urlguard.Policy, logger *zap.Logger) *WebFetchTool {
	return &WebFetchTool{policy: policy, logger: logger}
}

func (t *WebFetchTool) Name() string          { return "web_fetch" }
func (t *WebFetchTool) Kind() domaintool.Kind { return domaintool.KindFetch }
func (t *WebFetchTool) Description() string {
	return "Fetch the content of a URL. Only allowed domains (configured in web_fetch.allowed_domains) may be reached; private/local addresses are always rejected."
}

func (t *WebFetchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The http:// or https:// URL to fetch",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return &Result{Success: false, Error: "missing required parameter: url"}, nil
	}

	validated, err := t.policy.ValidateTargetURL(ctx, rawURL)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	dialer := &net.Dialer{Timeout: webFetchConnectTimeout}
	client := &http.Client{
		Timeout: webFetchClientTimeout,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
		// Manual redirect policy: re-validate every hop against the SSRF
		// guard instead of letting net/http follow transparently.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	body, finalURL, err := t.fetchFollowingRedirects(ctx, client, validated)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Output:  body,
		Metadata: map[string]interface{}{
			"url": finalURL,
		},
	}, nil
}

func (t *WebFetchTool) fetchFollowingRedirects(ctx context.Context, client *http.Client, url string) (string, string, error) {
	current := url
	for hop := 0; ; hop++ {
		if hop > webFetchMaxRedirects {
			return "", "", fmt.Errorf("too many redirects (max %d)", webFetchMaxRedirects)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return "", "", fmt.Errorf("building request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", "", fmt.Errorf("fetching %q: %w", current, err)
		}

		if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && loc != "" {
			resp.Body.Close()
			absolute, err := resolveRedirectTarget(current, loc)
			if err != nil {
				return "", "", fmt.Errorf("redirect rejected: %w", err)
			}
			next, err := t.policy.ValidateTargetURL(ctx, absolute)
			if err != nil {
				return "", "", fmt.Errorf("redirect rejected: %w", err)
			}
			current = next
			continue
		}

		defer resp.Body.Close()
		body, truncated := readCapped(resp.Body, webFetchMaxResponseLen)
		if truncated {
			body = truncateAtCharBoundary(body, webFetchMaxResponseLen) + "\n\n... [Response truncated due to size limit] ..."
		}
		return body, current, nil
	}
}

// resolveRedirectTarget makes a Location header absolute by resolving it
// against the URL that issued the redirect, so relative targets like
// "/new-page" reach the SSRF validator as full http(s) URLs.
func resolveRedirectTarget(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parsing current URL %q: %w", current, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// readCapped streams r and stops after max+1 bytes, reporting whether the
// response was truncated.
func readCapped(r io.Reader, max int) (string, bool) {
	limited := io.LimitReader(r, int64(max)+1)
	data, _ := io.ReadAll(limited)
	if len(data) > max {
		return string(data), true
	}
	return string(data), false
}

// truncateAtCharBoundary slices s to at most max bytes without splitting a
// multi-byte UTF-8 sequence.
func truncateAtCharBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], "�")
}
