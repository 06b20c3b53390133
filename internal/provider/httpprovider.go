package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/attrforge/swarm/pkg/ratelimit"
)

// defaultRequestsPerSecond bounds how often this process calls out to a
// single HTTP-backed provider, independent of that provider's own
// server-side limit: a client-side token bucket avoids spending a whole
// generation cycle just to collect a 429 (spec.md §4.6 provider errors
// still include rate_limited for when the bucket isn't tight enough).
const defaultRequestsPerSecond = 5

// HTTPRequest is the JSON body sent to a completion-style HTTP backend.
type HTTPRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// HTTPResponse is the JSON body expected back from a completion-style
// HTTP backend.
type HTTPResponse struct {
	Text      string `json:"text"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}

// HTTPProvider wraps a single LLM HTTP endpoint behind the Provider
// capability. It never retries internally (spec.md §4.6: retry/backoff
// belongs to the worker's generation loop).
type HTTPProvider struct {
	id      string
	model   string
	client  *resty.Client
	baseURL string
	limiter *ratelimit.TokenBucket
}

// NewHTTPProvider builds an HTTPProvider for id, calling baseURL with
// apiKey as a bearer token. timeout bounds a single call; a token bucket
// seeded at defaultRequestsPerSecond bounds how often Generate actually
// reaches the network.
func NewHTTPProvider(id, model, baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json")

	return &HTTPProvider{
		id:      id,
		model:   model,
		client:  client,
		baseURL: baseURL,
		limiter: ratelimit.NewTokenBucket(defaultRequestsPerSecond, time.Second/defaultRequestsPerSecond),
	}
}

func (p *HTTPProvider) ID() string { return p.id }

// Generate issues one completion request and classifies the outcome per
// spec.md §6's {rate_limited, auth, network, server, malformed} taxonomy.
// A locally exhausted token bucket is reported the same way a 429 from the
// remote end would be, without spending a round trip to find out.
func (p *HTTPProvider) Generate(ctx context.Context, prompt string, params Params) (Result, error) {
	if allowed, retryAfter := p.limiter.AllowWithRetryAfter(); !allowed {
		return Result{}, &Error{Kind: ErrKindRateLimited, Err: fmt.Errorf("local rate limit: retry after %s", retryAfter)}
	}

	var body HTTPResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(HTTPRequest{
			Prompt:      prompt,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
		}).
		SetResult(&body).
		Post(p.baseURL)

	if err != nil {
		return Result{}, &Error{Kind: ErrKindNetwork, Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return Result{}, &Error{Kind: ErrKindRateLimited, Err: fmt.Errorf("status %d", resp.StatusCode())}
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return Result{}, &Error{Kind: ErrKindAuth, Err: fmt.Errorf("status %d", resp.StatusCode())}
	case resp.StatusCode() >= 500:
		return Result{}, &Error{Kind: ErrKindServer, Err: fmt.Errorf("status %d", resp.StatusCode())}
	case resp.StatusCode() >= 400:
		return Result{}, &Error{Kind: ErrKindMalformed, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	if body.Text == "" {
		return Result{}, &Error{Kind: ErrKindMalformed, Err: fmt.Errorf("empty completion text")}
	}

	return Result{Text: body.Text, TokensIn: body.TokensIn, TokensOut: body.TokensOut}, nil
}
