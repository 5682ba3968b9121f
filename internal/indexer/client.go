// Package indexer provides a client for the Azure Video Indexer REST API
// endpoints used to analyze a single video:
//  1. Register a video by URL (POST .../Videos), which starts processing
//  2. Poll the video index (GET .../Videos/{id}/Index) until the state is terminal
//  3. Retrieve the full index document once the state is Processed
//
// Every call carries the account access token as a query parameter. Nothing
// is retried; a failed call is reported once and the caller decides.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Video Indexer data plane.
	DefaultBaseURL = "https://api.videoindexer.ai"

	// DefaultLanguage is the source language sent with every call.
	DefaultLanguage = "English"

	// DefaultDescription is used when an upload has no description.
	DefaultDescription = "Video uploaded for analysis"

	// DefaultPollInterval is the fixed wait between state queries.
	DefaultPollInterval = 10 * time.Second

	// DefaultRetentionPeriod is the number of days the service keeps the video.
	DefaultRetentionPeriod = 1

	defaultTimeout = 60 * time.Second
)

// TokenSource yields the account access token for each call.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Options configures a Client. Zero values select the defaults above.
type Options struct {
	BaseURL         string
	Location        string
	AccountID       string
	Language        string
	RetentionPeriod int
	PollInterval    time.Duration

	// DisableManagedIdentityDownload makes the service fetch videoUrl
	// anonymously instead of with its managed identity (e.g. presigned URLs).
	DisableManagedIdentityDownload bool
}

// Client calls Video Indexer for one account.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource

	baseURL         string
	location        string
	accountID       string
	language        string
	retentionPeriod int
	managedIdentity bool
	pollInterval    time.Duration

	// wait blocks between polls; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Video Indexer client.
func NewClient(opts Options, tokens TokenSource) *Client {
	c := &Client{
		httpClient:      newHTTPClient(defaultTimeout),
		tokens:          tokens,
		baseURL:         opts.BaseURL,
		location:        opts.Location,
		accountID:       opts.AccountID,
		language:        opts.Language,
		retentionPeriod: opts.RetentionPeriod,
		managedIdentity: !opts.DisableManagedIdentityDownload,
		pollInterval:    opts.PollInterval,
		wait:            sleepContext,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.language == "" {
		c.language = DefaultLanguage
	}
	if c.retentionPeriod <= 0 {
		c.retentionPeriod = DefaultRetentionPeriod
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c
}

// PollInterval returns the wait between state queries.
func (c *Client) PollInterval() time.Duration {
	return c.pollInterval
}

// --- Internal helpers ---

// videosURL returns the account's Videos collection URL.
func (c *Client) videosURL() string {
	return fmt.Sprintf("%s/%s/Accounts/%s/Videos",
		c.baseURL, url.PathEscape(c.location), url.PathEscape(c.accountID))
}

// indexURL returns the index URL for a video with the given query.
func (c *Client) indexURL(videoID string, params url.Values) string {
	return fmt.Sprintf("%s/%s/Index?%s", c.videosURL(), url.PathEscape(videoID), params.Encode())
}

// indexParams returns the query shared by state polls and index retrieval.
func (c *Client) indexParams(ctx context.Context, videoID string) (url.Values, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuthentication, VideoID: videoID, Err: err}
	}
	return url.Values{
		"accessToken": {token},
		"language":    {c.language},
	}, nil
}

// do sends a request and logs its method, path and latency. The access
// token never reaches the log because only the path is recorded.
func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	log.Debug().Str("method", method).Str("path", req.URL.Path).Msg("Video Indexer request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		// *url.Error embeds the full URL, access token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Video Indexer response")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Video Indexer response")
	return resp, nil
}

// newHTTPClient bounds the wait for response headers only. Index bodies are
// streamed to disk and may take longer than headerTimeout to arrive.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// isSuccess reports whether the status is 2xx.
func isSuccess(code int) bool {
	return code >= 200 && code <= 299
}

// readErrorBody drains a failed response and returns a short preview for logs.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return truncate(string(body), 200)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}
