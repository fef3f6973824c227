package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
)

var ErrUnknownTool = errors.New("unknown tool")

// ValidationError reports tool input rejected before any backend call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Backend is the REST surface the tools forward to.
type Backend interface {
	NearbyDeals(ctx context.Context, loc model.Location) ([]model.Deal, error)
	CreateDeal(ctx context.Context, req backend.CreateDealRequest) (*model.Deal, error)
	CreateVendor(ctx context.Context, req backend.CreateVendorRequest) (*model.Vendor, error)
	UploadMenu(ctx context.Context, vendorID, filename string, image io.Reader) (*backend.MenuUploadResult, error)
	AddMenuItem(ctx context.Context, vendorID string, req backend.AddMenuItemRequest) (*model.MenuItem, error)
	PlaceOrder(ctx context.Context, req backend.PlaceOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	SearchNearby(ctx context.Context, query string, loc model.Location) (*backend.SearchResult, error)
}

type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`

	handler HandlerFunc
}

type Registry struct {
	backend Backend
	logger  *zap.Logger
	tools   map[string]*Tool
}

// NewRegistry registers the marketplace tools against b.
func NewRegistry(b Backend, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{backend: b, logger: logger, tools: make(map[string]*Tool)}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(name, description string, schema json.RawMessage, h HandlerFunc) {
	r.tools[name] = &Tool{Name: name, Description: description, InputSchema: schema, handler: h}
}

// List returns tools sorted by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// Call validates args for the named tool and forwards them to the backend.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	res, err := t.handler(ctx, args)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			r.logger.Debug("Tool input rejected", zap.String("tool", name), zap.Error(err))
		} else {
			r.logger.Warn("Tool call failed", zap.String("tool", name), zap.Error(err))
		}
		return nil, err
	}
	r.logger.Debug("Tool call succeeded", zap.String("tool", name))
	return res, nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
