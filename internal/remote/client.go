// Package remote talks to the BaaS record store through its PostgREST RPC
// endpoint. It provides a [Client] with one method per remote procedure the
// sync engine consumes, a 3-attempt exponential-backoff [Retry] helper, and
// conversion between the backend's JSON rows and the [model] types.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/njoerd114/mosquesync/internal/model"
)

const (
	// defaultRequestsPerSecond paces RPC calls from one process.
	defaultRequestsPerSecond = 5

	// defaultTimeout bounds a single HTTP round trip.
	defaultTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// RPCError is returned when the backend answers an RPC with a non-2xx status.
type RPCError struct {
	Function string
	Status   int
	Message  string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc %s: status %d", e.Function, e.Status)
	}
	return fmt.Sprintf("rpc %s: status %d: %s", e.Function, e.Status, e.Message)
}

// Temporary reports whether the failure may succeed on retry (5xx, 408, 429).
func (e *RPCError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// Options configures a [Client].
type Options struct {
	// BaseURL is the project URL, e.g. "https://abc.supabase.co".
	BaseURL string

	// AnonKey is sent as the apikey header on every request.
	AnonKey string

	// AccessToken is sent as the bearer token. Defaults to AnonKey.
	AccessToken string

	// DisplayToken identifies this display to the RPC functions (p_token).
	DisplayToken string

	// RequestsPerSecond paces outgoing calls. Defaults to 5.
	RequestsPerSecond float64

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client calls the backend's remote procedures. Create one with [NewClient].
// It is safe for concurrent use.
type Client struct {
	baseURL string
	anonKey string
	bearer  string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a Client for the given backend.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	u, err := url.ParseRequestURI(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("backend url %q must be a valid http or https URL", opts.BaseURL)
	}
	if opts.AnonKey == "" {
		return nil, fmt.Errorf("backend anon key is required")
	}

	bearer := opts.AccessToken
	if bearer == "" {
		bearer = opts.AnonKey
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		anonKey: opts.AnonKey,
		bearer:  bearer,
		token:   opts.DisplayToken,
		hc:      hc,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     logger,
	}, nil
}

// Ping checks that the REST endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
		if err != nil {
			return fmt.Errorf("create ping request: %w", err)
		}
		c.setHeaders(req)
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("execute ping request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			return &RPCError{Function: "ping", Status: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	return nil
}

// GetSettings returns the account's settings record, or (nil, nil) if the
// account has none yet.
func (c *Client) GetSettings(ctx context.Context) (*model.Settings, error) {
	var raw json.RawMessage
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		raw, callErr = c.call(ctx, fnGetSettings, tokenParams(c.token))
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return decodeSettings(raw)
}

// UpsertSettings creates or replaces the account's settings record.
func (c *Client) UpsertSettings(ctx context.Context, s *model.Settings) error {
	params := buildUpsertSettingsParams(c.token, s)
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := c.call(ctx, fnUpsertSettings, params)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// GetImages returns every image record of the account, in all upload states.
// Rows that cannot be parsed are dropped and logged.
func (c *Client) GetImages(ctx context.Context) ([]model.Image, error) {
	var raw json.RawMessage
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		raw, callErr = c.call(ctx, fnGetImages, tokenParams(c.token))
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}
	return c.decodeImageList(fnGetImages, raw)
}

// UploadImageAtomic commits a completed image record in a single remote call.
// It is not retried: a repeated commit after an ambiguous failure is left to
// the caller.
func (c *Client) UploadImageAtomic(ctx context.Context, p UploadParams) (*model.Image, error) {
	raw, err := c.call(ctx, fnUploadImageAtomic, buildUploadParams(c.token, p))
	if err != nil {
		return nil, fmt.Errorf("upload image %s: %w", p.ID, err)
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("upload image %s: %w", p.ID, err)
	}
	return img, nil
}

// DeleteImageAndReorder deletes the record and compacts the display order of
// the remaining images in a single remote call. It returns the remaining
// images in their new order. Not retried.
func (c *Client) DeleteImageAndReorder(ctx context.Context, imageID string) ([]model.Image, error) {
	raw, err := c.call(ctx, fnDeleteImageAndReorder, buildDeleteParams(c.token, imageID))
	if err != nil {
		return nil, fmt.Errorf("delete image %s: %w", imageID, err)
	}
	return c.decodeImageList(fnDeleteImageAndReorder, raw)
}

func (c *Client) decodeImageList(fn string, raw json.RawMessage) ([]model.Image, error) {
	images, skipped, err := decodeImages(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if skipped > 0 {
		c.log.Debug("skipped malformed image rows", "function", fn, "count", skipped)
	}
	return images, nil
}

// call POSTs params to /rest/v1/rpc/<fn> and returns the raw JSON response.
func (c *Client) call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rpc %s: %w", fn, err)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", fn, err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, url.PathEscape(fn))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", fn, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", fn, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, readRPCError(fn, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", fn, err)
	}
	return raw, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")
}

// readRPCError builds an [RPCError] from a PostgREST error body
// ({"message": ..., "code": ...}), falling back to the raw text.
func readRPCError(fn string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	rpcErr := &RPCError{Function: fn, Status: resp.StatusCode}

	var pgErr struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(data, &pgErr) == nil && pgErr.Message != "" {
		rpcErr.Message = pgErr.Message
		if pgErr.Code != "" {
			rpcErr.Message = pgErr.Code + ": " + pgErr.Message
		}
	} else {
		rpcErr.Message = strings.TrimSpace(string(data))
	}
	return rpcErr
}

// IsNotFound reports whether err is a backend 404 (unknown function or row).
func IsNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Status == http.StatusNotFound
}
