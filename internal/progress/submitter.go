package progress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Submitter posts a participant's current page form on their behalf.
// It returns the response status; any status >= 400 is a failure.
type Submitter interface {
	Submit(ctx context.Context, pageURL string) (int, error)
}

// HTTPSubmitter submits pages to a running page server.
type HTTPSubmitter struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSubmitter creates a submitter for the server at baseURL. timeout
// bounds each request; the tracker also bounds each submission by context.
func NewHTTPSubmitter(baseURL string, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Submit posts auto_submit=True to the page, the same form a page's own
// timeout would send.
func (s *HTTPSubmitter) Submit(ctx context.Context, pageURL string) (int, error) {
	form := url.Values{"auto_submit": {"True"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("submit %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
