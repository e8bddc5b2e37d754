package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/foodcart/internal/domain"
	apperrors "github.com/utafrali/foodcart/pkg/errors"
	"github.com/utafrali/foodcart/pkg/httpclient"
	"github.com/utafrali/foodcart/pkg/logger"
	"github.com/utafrali/foodcart/pkg/tracing"
	"github.com/utafrali/foodcart/pkg/validator"
)

// ServiceName labels errors, spans and metrics for the food API.
const ServiceName = "food-api"

// TokenHeader carries the session token on authenticated calls.
const TokenHeader = "token"

type endpoint struct {
	method string
	path   string
	op     string
}

var (
	endpointCartAdd    = endpoint{http.MethodPost, "/api/cart/add", "add to cart"}
	endpointCartRemove = endpoint{http.MethodPost, "/api/cart/remove", "remove from cart"}
	endpointCartGet    = endpoint{http.MethodPost, "/api/cart/get", "load cart"}
	endpointFoodList   = endpoint{http.MethodGet, "/api/food/list", "list foods"}
)

// envelope is the food API's response body for every endpoint.
type envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Data     domain.Catalog `json:"data,omitempty"`
	CartData domain.Cart    `json:"cartData,omitempty"`
}

type itemRequest struct {
	ItemID string `json:"itemId"`
}

// Client talks to the food-ordering API. Failures come back as
// apperrors.ErrTransport (nothing usable returned) or apperrors.ErrRejected
// (success=false); non-2xx answers are mapped by httpclient.ParseResponseError.
type Client struct {
	baseURL string
	doer    httpclient.Doer
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewClient validates baseURL and returns a client that sends requests through doer.
func NewClient(baseURL string, doer httpclient.Doer, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse food API url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("food API url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("food API url %q has no host", baseURL)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  log,
		tracer:  tracing.Tracer("github.com/utafrali/foodcart/internal/remote"),
	}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AddToCart asks the API to add one unit of itemID to the token's cart.
func (c *Client) AddToCart(ctx context.Context, token, itemID string) error {
	_, err := c.call(ctx, endpointCartAdd, token, itemRequest{ItemID: itemID})
	return err
}

// RemoveFromCart asks the API to remove one unit of itemID from the token's cart.
func (c *Client) RemoveFromCart(ctx context.Context, token, itemID string) error {
	_, err := c.call(ctx, endpointCartRemove, token, itemRequest{ItemID: itemID})
	return err
}

// GetCart returns the server-side cart for token. A missing cartData decodes
// to an empty cart.
func (c *Client) GetCart(ctx context.Context, token string) (domain.Cart, error) {
	env, err := c.call(ctx, endpointCartGet, token, struct{}{})
	if err != nil {
		return nil, err
	}
	if env.CartData == nil {
		return domain.NewCart(), nil
	}
	return env.CartData, nil
}

// ListFoods returns the catalog. Products failing validation are kept (the
// list is the API's to define) but logged.
func (c *Client) ListFoods(ctx context.Context) (domain.Catalog, error) {
	env, err := c.call(ctx, endpointFoodList, "", nil)
	if err != nil {
		return nil, err
	}
	for i := range env.Data {
		if verr := validator.Validate(env.Data[i]); verr != nil {
			logger.WithContext(ctx, c.logger).WarnContext(ctx, "catalog entry failed validation",
				slog.Int("index", i),
				slog.String("product_id", env.Data[i].ID),
				slog.String("error", verr.Error()),
			)
		}
	}
	if env.Data == nil {
		return domain.Catalog{}, nil
	}
	return env.Data, nil
}

// Ping reports whether the API answers at all. Any response below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", ServiceName, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping %s: status %d", ServiceName, resp.StatusCode)
	}
	return nil
}

func (c *Client) call(ctx context.Context, ep endpoint, token string, body any) (env envelope, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, ServiceName+" "+ep.method+" "+ep.path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(ep.method),
			attribute.String("http.route", ep.path),
			attribute.Bool("storefront.authenticated", token != ""),
		),
	)
	defer func() {
		observeRequest(ep.path, err, time.Since(start))
		tracing.End(span, err)
	}()

	reqBody := io.Reader(http.NoBody)
	if body != nil {
		raw, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return env, apperrors.Internal(fmt.Errorf("marshal %s request: %w", ep.op, marshalErr))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, ep.method, c.baseURL+ep.path, reqBody)
	if err != nil {
		return env, apperrors.Internal(fmt.Errorf("create %s request: %w", ep.op, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return env, apperrors.Transport(ep.op, err)
	}
	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))

	if !httpclient.IsSuccess(resp.StatusCode) {
		return env, httpclient.ParseResponseError(resp, ServiceName)
	}
	if err := httpclient.DecodeJSON(resp, &env); err != nil {
		return env, apperrors.Transport(ep.op, err)
	}
	if !env.Success {
		return env, apperrors.Rejected(ep.op, env.Message)
	}

	logger.WithContext(ctx, c.logger).DebugContext(ctx, "food API call succeeded",
		slog.String("endpoint", ep.path),
		slog.Duration("duration", time.Since(start)),
	)
	return env, nil
}
