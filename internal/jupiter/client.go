// Package jupiter is a client for the Jupiter swap routing API: quotes and unsigned swap transactions.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURI       = "https://quote-api.jup.ag/v6"
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 1 * time.Second
	MaxRetryDelay        = 16 * time.Second
	DefaultTimeout       = 30 * time.Second
)

const (
	endpointQuote = "quote"
	endpointSwap  = "swap"
)

// Client talks to the routing service.
type Client struct {
	baseURI       string
	client        *http.Client
	retryAttempts int
	retryDelay    time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	logger        zerolog.Logger
}

// Option configures Client.
type Option func(*Client)

// WithBaseURI sets the API base URI.
func WithBaseURI(uri string) Option {
	return func(c *Client) {
		c.baseURI = strings.TrimRight(uri, "/")
	}
}

// WithRetryAttempts sets the total number of attempts per request.
func WithRetryAttempts(n int) Option {
	return func(c *Client) {
		c.retryAttempts = n
	}
}

// WithRetryDelay sets the delay before the first retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithSleep replaces the backoff wait. Tests use it to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With().Str("component", "jupiter").Logger()
		}
	}
}

// NewClient creates a routing API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURI:       DefaultBaseURI,
		client:        &http.Client{Timeout: DefaultTimeout},
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
		sleep:         sleepContext,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryAttempts < 1 {
		c.retryAttempts = 1
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// quoteFields are the parts of a quote response the agent reads. The full body is kept raw.
type quoteFields struct {
	InputMint   string `json:"inputMint"`
	InAmount    string `json:"inAmount"`
	OutputMint  string `json:"outputMint"`
	OutAmount   string `json:"outAmount"`
	SlippageBps int    `json:"slippageBps"`
}

// GetQuote requests a swap quote. amount is in the input token's smallest unit.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (*domain.Quote, error) {
	if err := ValidateAddress("inputMint", inputMint); err != nil {
		observability.RecordRoutingRequest(endpointQuote, "invalid")
		return nil, err
	}
	if err := ValidateAddress("outputMint", outputMint); err != nil {
		observability.RecordRoutingRequest(endpointQuote, "invalid")
		return nil, err
	}
	if err := ValidateAmount(amount); err != nil {
		observability.RecordRoutingRequest(endpointQuote, "invalid")
		return nil, err
	}
	if err := ValidateSlippage(slippageBps); err != nil {
		observability.RecordRoutingRequest(endpointQuote, "invalid")
		return nil, err
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", amount)
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	target := c.baseURI + "/quote?" + q.Encode()

	c.logger.Debug().
		Str("input_mint", inputMint).
		Str("output_mint", outputMint).
		Str("amount", amount).
		Msg("requesting quote")

	body, err := c.do(ctx, endpointQuote, "get quote", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, err
	}

	var fields quoteFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	return &domain.Quote{
		InputMint:   fields.InputMint,
		OutputMint:  fields.OutputMint,
		InAmount:    fields.InAmount,
		OutAmount:   fields.OutAmount,
		SlippageBps: fields.SlippageBps,
		Raw:         json.RawMessage(body),
	}, nil
}

// SwapOptions configures GetSwapTransaction.
type SwapOptions struct {
	UserPublicKey    string
	WrapAndUnwrapSol bool
	FeeAccount       string // optional
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
	FeeAccount       string          `json:"feeAccount,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// GetSwapTransaction builds the unsigned transaction for a quote previously returned by GetQuote.
func (c *Client) GetSwapTransaction(ctx context.Context, quote *domain.Quote, opts SwapOptions) (*domain.SwapTransaction, error) {
	if quote == nil || len(quote.Raw) == 0 {
		observability.RecordRoutingRequest(endpointSwap, "invalid")
		return nil, &ValidationError{Field: "quoteResponse", Reason: "empty quote"}
	}
	if err := ValidateAddress("userPublicKey", opts.UserPublicKey); err != nil {
		observability.RecordRoutingRequest(endpointSwap, "invalid")
		return nil, err
	}
	if opts.FeeAccount != "" {
		if err := ValidateAddress("feeAccount", opts.FeeAccount); err != nil {
			observability.RecordRoutingRequest(endpointSwap, "invalid")
			return nil, err
		}
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    opts.UserPublicKey,
		WrapAndUnwrapSol: opts.WrapAndUnwrapSol,
		FeeAccount:       opts.FeeAccount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, endpointSwap, "get swap transaction", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURI+"/swap", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	return domain.SwapTransactionFromBase64(resp.SwapTransaction)
}

// do sends the request built by newReq, retrying only rate-limited responses.
// The delay doubles after each rate-limited attempt, capped at MaxRetryDelay.
func (c *Client) do(ctx context.Context, endpoint, op string, newReq func() (*http.Request, error)) ([]byte, error) {
	state := domain.RetryState{Delay: c.retryDelay}
	var lastErr error

	for state.Attempt = 0; state.Attempt < c.retryAttempts; state.Attempt++ {
		if state.Attempt > 0 {
			observability.RecordRateLimitRetry(endpoint)
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", state.Attempt+1).
				Int("max_attempts", c.retryAttempts).
				Dur("delay", state.Delay).
				Msg("rate limited, retrying")
			if err := c.sleep(ctx, state.Delay); err != nil {
				return nil, err
			}
			state.Delay *= 2
			if state.Delay > MaxRetryDelay {
				state.Delay = MaxRetryDelay
			}
		}

		body, err := c.once(endpoint, op, newReq)
		if err == nil {
			observability.RecordRoutingRequest(endpoint, "ok")
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			observability.RecordRoutingRequest(endpoint, "error")
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("routing request failed")
			return nil, err
		}
		lastErr = err
	}

	observability.RecordRoutingRequest(endpoint, "rate_limited")
	return nil, fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, lastErr)
}

func (c *Client) once(endpoint, op string, newReq func() (*http.Request, error)) ([]byte, error) {
	req, err := newReq()
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransactionError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} when present, else returns the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
