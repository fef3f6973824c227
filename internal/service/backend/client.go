package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
)

const (
	DefaultAPIURL        = "http://localhost:8000"
	DefaultTimeout       = 10 * time.Second
	DefaultUploadTimeout = 30 * time.Second
)

type Config struct {
	APIURL        string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client is a typed wrapper over the marketplace REST backend. It does no work beyond
// marshaling parameters and decoding responses.
type Client struct {
	client *http.Client
	upload *http.Client
	config Config
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := otelhttp.NewTransport(&HeaderTransport{Base: http.DefaultTransport})
	return &Client{
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		upload: &http.Client{Transport: transport, Timeout: cfg.UploadTimeout},
		config: cfg,
		logger: logger,
	}
}

// Users

func (c *Client) RegisterUser(ctx context.Context, req RegisterUserRequest) (*model.Registration, error) {
	var out model.Registration
	if err := c.do(ctx, http.MethodPost, "/users", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodGet, "/users/phone/"+url.PathEscape(phone), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vendors

func (c *Client) CreateVendor(ctx context.Context, req CreateVendorRequest) (*model.Vendor, error) {
	var out model.Vendor
	if err := c.do(ctx, http.MethodPost, "/vendors", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetVendor(ctx context.Context, vendorID string) (*model.Vendor, error) {
	var out model.Vendor
	if err := c.do(ctx, http.MethodGet, "/vendors/"+url.PathEscape(vendorID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchNearby(ctx context.Context, query string, loc model.Location) (*SearchResult, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("lat", formatCoord(loc.Lat))
	q.Set("lng", formatCoord(loc.Lng))

	var out SearchResult
	if err := c.do(ctx, http.MethodGet, "/vendors/nearby", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadMenu sends a menu image as multipart form field "file". It uses the longer upload timeout.
func (c *Client) UploadMenu(ctx context.Context, vendorID, filename string, image io.Reader) (*MenuUploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to read menu image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/vendors/"+url.PathEscape(vendorID)+"/menu", nil), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out MenuUploadResult
	if err := c.send(c.upload, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddMenuItem(ctx context.Context, vendorID string, req AddMenuItemRequest) (*model.MenuItem, error) {
	var out model.MenuItem
	if err := c.do(ctx, http.MethodPost, "/vendors/"+url.PathEscape(vendorID)+"/menu/item", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Orders

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.Order, error) {
	var headers http.Header
	if req.IdempotencyKey != "" {
		headers = http.Header{HeaderIdempotencyKey: []string{req.IdempotencyKey}}
	}
	var out model.Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var out model.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VendorOrders(ctx context.Context, vendorID string) ([]model.Order, error) {
	var out []model.Order
	if err := c.do(ctx, http.MethodGet, "/orders/vendor/"+url.PathEscape(vendorID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CustomerOrders(ctx context.Context, phone string) ([]model.Order, error) {
	var out struct {
		Orders []model.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/customer/"+url.PathEscape(phone), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) Recommendations(ctx context.Context, phone string) ([]model.Vendor, error) {
	var out struct {
		Vendors []model.Vendor `json:"vendors"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/recommendations/"+url.PathEscape(phone), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Vendors, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	body := map[string]model.OrderStatus{"status": status}
	var out model.Order
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", nil, body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deals

func (c *Client) CreateDeal(ctx context.Context, req CreateDealRequest) (*model.Deal, error) {
	var out model.Deal
	if err := c.do(ctx, http.MethodPost, "/deals", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NearbyDeals accepts both {"deals": [...]} and a bare array, as the backend has served both.
func (c *Client) NearbyDeals(ctx context.Context, loc model.Location) ([]model.Deal, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(loc.Lat))
	q.Set("lng", formatCoord(loc.Lng))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/deals", q, nil, nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var deals []model.Deal
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &deals); err != nil {
			return nil, fmt.Errorf("failed to decode deals: %w", err)
		}
		return deals, nil
	}
	var wrapped struct {
		Deals []model.Deal `json:"deals"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode deals: %w", err)
	}
	return wrapped.Deals, nil
}

// Voice

func (c *Client) Voice(ctx context.Context, req VoiceRequest) (*model.VoiceResponse, error) {
	var out model.VoiceResponse
	if err := c.do(ctx, http.MethodPost, "/voice", nil, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	return c.send(c.client, req, out)
}

func (c *Client) send(hc *http.Client, req *http.Request, out any) error {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("backend call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || (apiErr.Detail == "" && len(apiErr.Errors) == 0) {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := strings.TrimRight(c.config.APIURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
