package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/cart"
)

// GuestPhone is sent when no phone number is on file.
const GuestPhone = "guest"

var (
	ErrNotReady          = errors.New("nothing to submit")
	ErrInFlight          = errors.New("order submission already in progress")
	ErrMissingPickupCode = errors.New("order confirmed without a pickup code")
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req backend.PlaceOrderRequest) (*model.Order, error)
}

type Status struct {
	State State
	Order *model.Order
	Err   error
}

// Flow turns a vendor cart into exactly one order request per Submit.
type Flow struct {
	placer   OrderPlacer
	cart     *cart.Cart
	vendorID string
	phone    string
	location *model.Location
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	order *model.Order
	err   error
}

func NewFlow(placer OrderPlacer, c *cart.Cart, vendorID, customerPhone string, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		placer:   placer,
		cart:     c,
		vendorID: vendorID,
		phone:    customerPhone,
		logger:   logger,
	}
}

// SetLocation attaches the customer position to subsequent orders.
func (f *Flow) SetLocation(loc model.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = &loc
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{State: f.state, Order: f.order, Err: f.err}
}

// Submit places the order. It is refused with ErrNotReady when the cart is empty or the
// vendor is unknown, and with ErrInFlight while a previous submission is pending. On
// failure the cart is left as it was.
func (f *Flow) Submit(ctx context.Context) (*model.Order, error) {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return nil, ErrInFlight
	}
	if f.vendorID == "" || f.cart.Count() == 0 {
		f.mu.Unlock()
		return nil, ErrNotReady
	}

	req := backend.PlaceOrderRequest{
		VendorID:       f.vendorID,
		CustomerPhone:  f.customerPhone(),
		Items:          toLines(f.cart.OrderItems()),
		Location:       f.location,
		IdempotencyKey: uuid.NewString(),
	}
	f.state = StateSubmitting
	f.err = nil
	f.mu.Unlock()

	f.logger.Info("Placing order",
		zap.String("vendor_id", req.VendorID),
		zap.Int("lines", len(req.Items)),
		zap.String("idempotency_key", req.IdempotencyKey),
	)

	order, err := f.placer.PlaceOrder(ctx, req)
	if err == nil && (order == nil || order.PickupCode == "") {
		err = ErrMissingPickupCode
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.state = StateFailed
		f.err = fmt.Errorf("failed to place order: %w", err)
		f.logger.Warn("Order failed", zap.String("vendor_id", req.VendorID), zap.Error(err))
		return nil, f.err
	}

	f.cart.Clear()
	f.state = StateSuccess
	f.order = order
	f.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("pickup_code", order.PickupCode),
	)
	return order, nil
}

func (f *Flow) customerPhone() string {
	if f.phone == "" {
		return GuestPhone
	}
	return f.phone
}

func toLines(items []model.OrderItem) []backend.OrderLine {
	lines := make([]backend.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, backend.OrderLine{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	return lines
}
