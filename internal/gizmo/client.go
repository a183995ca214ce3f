// Package gizmo is the client for the Gizmo POS REST API.
//
// The POS replaces a product wholesale on PUT: any field missing from the
// body is reset to its default. Single-field updates are therefore done as
// read-modify-write, always starting from a freshly fetched record. Stock is
// the exception and has its own path-parameter endpoint.
package gizmo

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

	"gizmo-stock/internal/model"
	"gizmo-stock/internal/retry"
	"gizmo-stock/internal/transport"
)

// Log categories attached to every protocol log entry.
const (
	CategoryStock   = "STOCK_API"
	CategoryPrice   = "PRICE_API"
	CategoryCost    = "COST_API"
	CategoryBarcode = "BARCODE_API"
	CategoryName    = "NAME_API"
	CategoryProduct = "PRODUCT_API"
	CategoryCatalog = "CATALOG_API"
)

const (
	defaultProductsEndpoint = "/v2.0/products"
	defaultGroupsEndpoint   = "/v2.0/productgroups"
	defaultPageLimit        = 5000
	maxErrorBody            = 1024
	userAgent               = "gizmo-stock/1.0"
)

// Config holds connection settings for one POS server.
type Config struct {
	BaseURL          string // e.g. http://192.168.1.10/api
	Username         string
	Password         string
	ProductsEndpoint string // default /v2.0/products
	GroupsEndpoint   string // default /v2.0/productgroups
	BaseParams       string // extra query appended to product listings
	PageLimit        int
	Timeout          time.Duration
	Retry            retry.Options

	// OnRetry observes retries with the log category of the failing call.
	OnRetry func(category string, attempt int, err error, delay time.Duration)

	// HTTPClient overrides the default client. Tests use it to intercept calls.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Gizmo REST API with Basic auth.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	username         string
	password         string
	productsEndpoint string
	groupsEndpoint   string
	baseParams       url.Values
	pageLimit        int
	retry            retry.Options
	onRetry          func(category string, attempt int, err error, delay time.Duration)
	logger           *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	params, err := url.ParseQuery(strings.TrimPrefix(cfg.BaseParams, "?"))
	if err != nil {
		return nil, fmt.Errorf("invalid base params: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport.ForURL(cfg.BaseURL, timeout),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		httpClient:       httpClient,
		baseURL:          strings.TrimSuffix(cfg.BaseURL, "/"),
		username:         cfg.Username,
		password:         cfg.Password,
		productsEndpoint: withDefault(cfg.ProductsEndpoint, defaultProductsEndpoint),
		groupsEndpoint:   withDefault(cfg.GroupsEndpoint, defaultGroupsEndpoint),
		baseParams:       params,
		pageLimit:        orDefault(cfg.PageLimit, defaultPageLimit),
		retry:            cfg.Retry,
		onRetry:          cfg.OnRetry,
		logger:           logger,
	}, nil
}

// BaseURL returns the API root, used to resolve relative image paths.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// retryOptions binds the retry policy to a log category.
func (c *Client) retryOptions(category string) retry.Options {
	opts := c.retry
	userHook := opts.OnRetry
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("retrying request",
			slog.String("category", category),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if userHook != nil {
			userHook(attempt, err, delay)
		}
		if c.onRetry != nil {
			c.onRetry(category, attempt, err, delay)
		}
	}
	return opts
}

// do performs one HTTP exchange and returns the body of a 2xx response.
// Non-2xx responses become *model.HTTPError; transport failures wrap
// model.ErrNetwork.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetwork, method, fullURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", model.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &model.HTTPError{
			Method: method,
			URL:    fullURL,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(text),
		}
	}
	return respBody, nil
}

// envelope is the POS response wrapper.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	IsError bool            `json:"isError"`
	Message string          `json:"message"`
}

// unwrapResult returns the result member when present, else the whole body.
func unwrapResult(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.IsError {
		return nil, errors.New(withDefault(env.Message, "server reported an error"))
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return body, nil
	}
	return env.Result, nil
}

func (c *Client) logFailure(ctx context.Context, category, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("category", category), slog.String("error", err.Error()))
	if status, ok := model.StatusOf(err); ok {
		attrs = append(attrs, slog.Int("status", status))
	}
	c.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func orDefault(val, defaultVal int) int {
	if val > 0 {
		return val
	}
	return defaultVal
}
