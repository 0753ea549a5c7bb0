// Package completion sends single-turn prompts to the configured LLM
// providers, applying per-family parameter policy, pacing and timeouts.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Request is one prompt for one model.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
	// Effort overrides the family's reasoning effort. "none" suppresses it.
	Effort string
}

// Result is the trimmed completion text with usage and any search sources.
type Result struct {
	Text      string
	Model     string
	Usage     model.TokenUsage
	Citations []string
	Elapsed   time.Duration
}

// Call is the provider-neutral request a Backend receives after policy has
// been applied.
type Call struct {
	Model      string
	System     string
	Prompt     string
	MaxTokens  int64
	TokenParam string
	Effort     string
}

// without returns a copy of c with the named parameter removed.
func (c Call) without(param string) Call {
	switch param {
	case ParamReasoningEffort:
		c.Effort = ""
	case TokenParamMaxTokens, TokenParamMaxCompletionTokens:
		c.TokenParam = ""
		c.MaxTokens = 0
	}
	return c
}

// Backend is one provider API.
type Backend interface {
	Complete(ctx context.Context, call Call) (*Result, error)
}

// Completer is the interface stages depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// CompletionError wraps any failure to obtain a completion.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion: %s: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// UnsupportedParamError is returned by a Backend when the provider rejected
// one request parameter.
type UnsupportedParamError struct {
	Param string
	Err   error
}

func (e *UnsupportedParamError) Error() string {
	return fmt.Sprintf("unsupported parameter %q: %v", e.Param, e.Err)
}

func (e *UnsupportedParamError) Unwrap() error { return e.Err }

// Option configures a Client.
type Option func(*Client)

// WithBackend registers the backend serving a provider.
func WithBackend(p Provider, b Backend) Option {
	return func(c *Client) { c.backends[p] = b }
}

// WithPacer sets the request pacer.
func WithPacer(p *Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithRetry sets the in-call retry policy for transient transport errors.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTimeouts replaces the per-family timeout lookup, mainly for tests.
func WithTimeouts(fn func(Policy) time.Duration) Option {
	return func(c *Client) { c.timeout = fn }
}

// Client routes requests to provider backends.
type Client struct {
	backends map[Provider]Backend
	pacer    *Pacer
	retry    resilience.RetryConfig
	timeout  func(Policy) time.Duration
}

// NewClient creates a Client. Without WithRetry each call is attempted once.
func NewClient(opts ...Option) *Client {
	c := &Client{
		backends: make(map[Provider]Backend),
		retry:    resilience.RetryConfig{MaxAttempts: 1},
		timeout:  func(p Policy) time.Duration { return p.Timeout },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends req and returns the trimmed text. Every failure is returned
// as a *CompletionError.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	policy := PolicyFor(req.Model)
	backend, ok := c.backends[ProviderFor(req.Model)]
	if !ok {
		return nil, &CompletionError{Model: req.Model, Err: fmt.Errorf("no backend configured for provider %s", ProviderFor(req.Model))}
	}

	call := Call{
		Model:     req.Model,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
		Effort:    policy.Effort,
	}
	if req.MaxTokens > 0 {
		call.TokenParam = policy.TokenParam
	}
	switch req.Effort {
	case "":
	case "none":
		call.Effort = ""
	default:
		call.Effort = req.Effort
	}

	log := zap.L().With(
		zap.String("model", req.Model),
		zap.String("family", policy.Family.String()),
	)

	start := time.Now()
	res, err := c.send(ctx, backend, policy, call)
	var unsupported *UnsupportedParamError
	if errors.As(err, &unsupported) {
		log.Warn("completion: parameter rejected, retrying without it",
			zap.String("param", unsupported.Param),
		)
		res, err = c.send(ctx, backend, policy, call.without(unsupported.Param))
	}
	if err != nil {
		return nil, &CompletionError{Model: req.Model, Err: err}
	}

	res.Text = strings.TrimSpace(res.Text)
	res.Model = req.Model
	res.Elapsed = time.Since(start)
	if res.Usage.TotalTokens == 0 {
		res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	}

	log.Debug("completion: done",
		zap.Int64("prompt_tokens", res.Usage.PromptTokens),
		zap.Int64("completion_tokens", res.Usage.CompletionTokens),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (c *Client) send(ctx context.Context, b Backend, policy Policy, call Call) (*Result, error) {
	if err := c.pacer.Wait(ctx, call.Model); err != nil {
		return nil, err
	}

	if d := c.timeout(policy); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger(string(ProviderFor(call.Model)), "complete")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Result, error) {
		res, err := b.Complete(ctx, call)
		if err == nil && res == nil {
			return nil, errors.New("backend returned no result")
		}
		return res, err
	})
}
