/*
Package api implements the REST client for the chat backend.

Every call attaches the current session token as a bearer credential, encodes and decodes
bodies as JSON and converts non-2xx responses into *errs.CustomError values carrying the
server's own message when it supplies one.
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// DefaultBaseURL is the backend the client talks to when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// TokenSource returns the bearer token to attach, or "" for anonymous calls.
type TokenSource func() string

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api.
	BaseURL string

	// Timeout bounds every request. Zero means no client-side timeout.
	Timeout time.Duration

	// Tokens supplies the bearer token for each call.
	Tokens TokenSource

	// HTTPClient replaces the underlying transport client, mainly for tests.
	HTTPClient *http.Client
}

// Client is the REST client. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	tokens TokenSource
	logger zerolog.Logger
}

// errorBody is the part of an error response the client understands.
type errorBody struct {
	Message string `json:"message"`
}

// New builds a Client from opts.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Tokens == nil {
		opts.Tokens = func() string { return "" }
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}

	c := &Client{
		tokens: opts.Tokens,
		logger: logx.Component("api"),
	}

	rc.SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}

	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Dur("latency", resp.Time()).
			Msg("API request completed")
		return nil
	})

	rc.OnError(func(r *resty.Request, err error) {
		c.logger.Warn().
			Err(err).
			Str("method", r.Method).
			Str("url", r.URL).
			Msg("API request failed")
	})

	c.http = rc
	return c
}

// call performs one request. pathParams fill {placeholders} in path; out, if non-nil,
// receives the decoded 2xx body.
func (c *Client) call(ctx context.Context, method, path string, pathParams map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)

	if token := c.tokens(); token != "" {
		req.SetAuthToken(token)
	}
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrRequestFailed, err)
	}

	if resp.IsError() {
		var eb errorBody
		_ = json.Unmarshal(resp.Body(), &eb)
		return errs.FromResponse(resp.StatusCode(), eb.Message)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Undecodable response body")
		return errs.Wrap(errs.ErrInvalidResponse, err)
	}

	return nil
}
