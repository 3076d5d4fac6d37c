// Package printify is a client for the Printify print-on-demand API.
package printify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/fulfillment"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.printify.com"

const maxResponseBytes = 1 << 20

var _ fulfillment.Vendor = (*Client)(nil)

// APIError is a non-2xx response from the vendor.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("printify: status %d", e.StatusCode)
	}
	return fmt.Sprintf("printify: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config configures the Printify client.
type Config struct {
	BaseURL string
	Token   string
	// ShopID pins the shop; when empty the first shop of the account is used.
	ShopID  string
	Timeout time.Duration
	// ShippingMethod is the vendor shipping tier (1 standard, 2 express).
	ShippingMethod int
	// FailureThreshold is the number of consecutive failures that open the
	// circuit breaker.
	FailureThreshold uint32
	BreakerTimeout   time.Duration

	HTTPClient     *http.Client
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
}

// Client implements fulfillment.Vendor.
type Client struct {
	baseURL        string
	token          string
	shippingMethod int
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker[[]byte]
	lg             *zap.Logger

	mu     sync.Mutex
	shopID string
}

// New creates a Printify client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ShippingMethod <= 0 {
		cfg.ShippingMethod = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var opts []otelhttp.Option
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		}
	}

	lg := cfg.Logger.Named("printify")
	threshold := cfg.FailureThreshold
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		shippingMethod: cfg.ShippingMethod,
		http:           httpClient,
		lg:             lg,
		shopID:         cfg.ShopID,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "printify",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return !apiErr.Temporary()
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				lg.Warn("Circuit breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// ShopID returns the configured shop or the first shop of the account. The
// result is cached.
func (c *Client) ShopID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shopID != "" {
		return c.shopID, nil
	}

	body, err := c.do(ctx, http.MethodGet, "/v1/shops.json", nil)
	if err != nil {
		return "", errors.Wrap(err, "list shops")
	}
	ids, err := decodeShopIDs(body)
	if err != nil {
		return "", errors.Wrap(err, "decode shops")
	}
	if len(ids) == 0 {
		return "", fulfillment.ErrNoShop
	}
	c.shopID = ids[0]
	return c.shopID, nil
}

// CreateOrder submits a draft order and returns the vendor order id.
func (c *Client) CreateOrder(ctx context.Context, shopID string, req fulfillment.OrderRequest) (string, error) {
	payload, err := encodeOrder(req, c.shippingMethod)
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/shops/"+url.PathEscape(shopID)+"/orders.json", payload)
	if err != nil {
		return "", errors.Wrap(err, "create order")
	}
	id, err := decodeID(body)
	if err != nil {
		return "", errors.Wrap(err, "decode order")
	}
	if id == "" {
		return "", errors.New("vendor returned empty order id")
	}
	return id, nil
}

// SubmitToProduction releases a draft order to manufacturing.
func (c *Client) SubmitToProduction(ctx context.Context, shopID, vendorOrderID string) error {
	path := "/v1/shops/" + url.PathEscape(shopID) + "/orders/" + url.PathEscape(vendorOrderID) + "/send_to_production.json"
	if _, err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return errors.Wrap(err, "send to production")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, errors.Wrap(err, "create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "send request")
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, errors.Wrap(err, "read response")
		}
		c.lg.Debug("Request done",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: decodeErrorMessage(data)}
		}
		return data, nil
	})
}

func encodeOrder(req fulfillment.OrderRequest, shippingMethod int) ([]byte, error) {
	variants := make([]int64, len(req.LineItems))
	for i, li := range req.LineItems {
		v, err := strconv.ParseInt(li.VariantID, 10, 64)
		if err != nil {
			return nil, errors.Errorf("line item %d: invalid variant id %q", i, li.VariantID)
		}
		variants[i] = v
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("external_id", func(e *jx.Encoder) { e.Str(req.ExternalID) })
		e.Field("label", func(e *jx.Encoder) { e.Str(req.Label) })
		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i, li := range req.LineItems {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(li.ProductID) })
						e.Field("variant_id", func(e *jx.Encoder) { e.Int64(variants[i]) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
					})
				}
			})
		})
		e.Field("shipping_method", func(e *jx.Encoder) { e.Int(shippingMethod) })
		e.Field("send_shipping_notification", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("address_to", func(e *jx.Encoder) {
			r := req.Recipient
			e.Obj(func(e *jx.Encoder) {
				str := func(k, v string) { e.Field(k, func(e *jx.Encoder) { e.Str(v) }) }
				str("first_name", r.FirstName)
				str("last_name", r.LastName)
				str("email", r.Email)
				str("phone", r.Phone)
				str("country", r.Country)
				str("region", r.Region)
				str("address1", r.Address1)
				str("address2", r.Address2)
				str("city", r.City)
				str("zip", r.PostalCode)
			})
		})
	})
	return e.Bytes(), nil
}

// decodeShopIDs reads the id of every shop in a shops listing.
func decodeShopIDs(data []byte) ([]string, error) {
	var ids []string
	d := jx.DecodeBytes(data)
	err := d.Arr(func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "id" {
				return d.Skip()
			}
			id, err := decodeScalarID(d)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	})
	return ids, err
}

func decodeID(data []byte) (string, error) {
	var id string
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		v, err := decodeScalarID(d)
		id = v
		return err
	})
	return id, err
}

// decodeScalarID accepts string and numeric ids.
func decodeScalarID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("unexpected id type %s", d.Next())
	}
}

func decodeErrorMessage(data []byte) string {
	var msg string
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "message" && d.Next() == jx.String {
			v, err := d.Str()
			msg = v
			return err
		}
		return d.Skip()
	}); err != nil {
		s := strings.TrimSpace(string(data))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	return msg
}
