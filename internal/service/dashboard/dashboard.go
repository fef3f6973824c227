package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/menuimage"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultMaxBackoff = time.Minute
)

var (
	ErrNoVendor          = errors.New("no vendor id on file, complete vendor onboarding first")
	ErrUnknownOrder      = errors.New("order is not on the dashboard")
	ErrInvalidTransition = errors.New("order status cannot be changed that way")
	ErrMissingItemName   = errors.New("item name is required")
	ErrInvalidPrice      = errors.New("price must be greater than 0")
)

type Client interface {
	GetVendor(ctx context.Context, vendorID string) (*model.Vendor, error)
	VendorOrders(ctx context.Context, vendorID string) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error)
	AddMenuItem(ctx context.Context, vendorID string, req backend.AddMenuItemRequest) (*model.MenuItem, error)
	UploadMenu(ctx context.Context, vendorID, filename string, image io.Reader) (*backend.MenuUploadResult, error)
}

type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	// OnUpdate is called after every applied refresh, outside the dashboard lock.
	OnUpdate func(Snapshot)
}

type Snapshot struct {
	Vendor    *model.Vendor
	Orders    []model.Order
	Err       error
	UpdatedAt time.Time
}

// Dashboard keeps a vendor's profile and incoming orders fresh. Fetches are numbered and a
// result older than the last applied one is dropped, so a slow poll never overwrites a
// newer refresh.
type Dashboard struct {
	client   Client
	vendorID string
	cfg      Config
	logger   *zap.Logger

	mu            sync.Mutex
	vendor        *model.Vendor
	orders        []model.Order
	err           error
	updatedAt     time.Time
	nextGen       uint64
	vendorApplied uint64
	ordersApplied uint64
}

func New(client Client, vendorID string, cfg Config, logger *zap.Logger) (*Dashboard, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, ErrNoVendor
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.Interval {
			cfg.MaxBackoff = cfg.Interval
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		client:   client,
		vendorID: vendorID,
		cfg:      cfg,
		logger:   logger.With(zap.String("vendor_id", vendorID)),
	}, nil
}

func (d *Dashboard) VendorID() string {
	return d.vendorID
}

// Load fetches the vendor profile and its orders concurrently.
func (d *Dashboard) Load(ctx context.Context) error {
	gen := d.generation()

	var (
		vendor *model.Vendor
		orders []model.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := d.client.GetVendor(gctx, d.vendorID)
		if err != nil {
			return fmt.Errorf("failed to get vendor: %w", err)
		}
		vendor = v
		return nil
	})
	g.Go(func() error {
		o, err := d.client.VendorOrders(gctx, d.vendorID)
		if err != nil {
			return fmt.Errorf("failed to get vendor orders: %w", err)
		}
		orders = o
		return nil
	})
	if err := g.Wait(); err != nil {
		d.applyErr(gen, err)
		return err
	}

	d.apply(gen, vendor, orders, true)
	return nil
}

// Refresh refetches only the order list.
func (d *Dashboard) Refresh(ctx context.Context) error {
	gen := d.generation()
	orders, err := d.client.VendorOrders(ctx, d.vendorID)
	if err != nil {
		err = fmt.Errorf("failed to get vendor orders: %w", err)
		d.applyErr(gen, err)
		return err
	}
	d.apply(gen, nil, orders, true)
	return nil
}

func (d *Dashboard) refreshVendor(ctx context.Context) error {
	gen := d.generation()
	vendor, err := d.client.GetVendor(ctx, d.vendorID)
	if err != nil {
		err = fmt.Errorf("failed to get vendor: %w", err)
		d.applyErr(gen, err)
		return err
	}
	d.apply(gen, vendor, nil, false)
	return nil
}

// Run loads the dashboard and then polls orders until ctx is cancelled. Consecutive
// failures stretch the delay exponentially up to MaxBackoff; a success resets it.
func (d *Dashboard) Run(ctx context.Context) error {
	failures := 0
	if err := d.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failures++
		d.logger.Warn("Dashboard load failed", zap.Error(err))
	}

	timer := time.NewTimer(d.nextDelay(failures))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		var err error
		if d.Vendor() == nil {
			err = d.Load(ctx)
		} else {
			err = d.Refresh(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			d.logger.Warn("Dashboard refresh failed",
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
		} else {
			failures = 0
		}

		timer.Reset(d.nextDelay(failures))
	}
}

func (d *Dashboard) nextDelay(failures int) time.Duration {
	if failures <= 0 {
		return d.cfg.Interval
	}
	delay := d.cfg.Interval
	for i := 0; i < failures && delay < d.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > d.cfg.MaxBackoff {
		delay = d.cfg.MaxBackoff
	}
	// up to 10% jitter
	if tenth := int64(delay) / 10; tenth > 0 {
		delay += time.Duration(rand.Int63n(tenth))
	}
	return delay
}

// Accept moves a pending order to preparing.
func (d *Dashboard) Accept(ctx context.Context, orderID string) (*model.Order, error) {
	return d.transition(ctx, orderID, model.StatusPending, model.StatusPreparing)
}

// MarkReady moves a preparing order to ready.
func (d *Dashboard) MarkReady(ctx context.Context, orderID string) (*model.Order, error) {
	return d.transition(ctx, orderID, model.StatusPreparing, model.StatusReady)
}

// Advance applies whichever transition the order's current status allows.
func (d *Dashboard) Advance(ctx context.Context, orderID string) (*model.Order, error) {
	current, err := d.order(orderID)
	if err != nil {
		return nil, err
	}
	next, ok := current.Status.Next()
	if !ok {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, orderID, current.Status)
	}
	return d.transition(ctx, orderID, current.Status, next)
}

func (d *Dashboard) transition(ctx context.Context, orderID string, from, to model.OrderStatus) (*model.Order, error) {
	current, err := d.order(orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: order %s is %s, not %s", ErrInvalidTransition, orderID, current.Status, from)
	}

	updated, err := d.client.UpdateOrderStatus(ctx, orderID, to)
	if err != nil {
		d.logger.Warn("Order status update failed",
			zap.String("order_id", orderID),
			zap.String("status", string(to)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to update order %s to %s: %w", orderID, to, err)
	}
	d.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(to)),
	)

	if err := d.Refresh(ctx); err != nil {
		d.logger.Warn("Refetch after status update failed", zap.Error(err))
	}
	return updated, nil
}

// AddMenuItem validates and adds one item, then refetches the vendor profile.
func (d *Dashboard) AddMenuItem(ctx context.Context, name string, price float64, description string) (*model.MenuItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingItemName
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	item, err := d.client.AddMenuItem(ctx, d.vendorID, backend.AddMenuItemRequest{
		ItemName:    name,
		Price:       price,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add menu item: %w", err)
	}
	if err := d.refreshVendor(ctx); err != nil {
		d.logger.Warn("Refetch after menu change failed", zap.Error(err))
	}
	return item, nil
}

// UploadMenu sends a menu photo for extraction, then refetches the vendor profile.
func (d *Dashboard) UploadMenu(ctx context.Context, filename string, data []byte) (*backend.MenuUploadResult, error) {
	img, err := menuimage.Prepare(data, filename)
	if err != nil {
		return nil, err
	}

	res, err := d.client.UploadMenu(ctx, d.vendorID, img.Filename, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to upload menu: %w", err)
	}
	d.logger.Info("Menu uploaded",
		zap.Int("items_extracted", res.ItemsExtracted),
		zap.Bool("resized", img.Resized),
	)
	if err := d.refreshVendor(ctx); err != nil {
		d.logger.Warn("Refetch after menu upload failed", zap.Error(err))
	}
	return res, nil
}

func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dashboard) Vendor() *model.Vendor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vendor
}

func (d *Dashboard) Orders() []model.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Order(nil), d.orders...)
}

func (d *Dashboard) Pending() []model.Order {
	return d.withStatus(model.StatusPending)
}

func (d *Dashboard) Preparing() []model.Order {
	return d.withStatus(model.StatusPreparing)
}

func (d *Dashboard) withStatus(status model.OrderStatus) []model.Order {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []model.Order
	for _, o := range d.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (d *Dashboard) order(orderID string) (model.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return model.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
}

func (d *Dashboard) generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextGen++
	return d.nextGen
}

// apply stores a fetch result unless a newer one of the same kind already landed.
func (d *Dashboard) apply(gen uint64, vendor *model.Vendor, orders []model.Order, hasOrders bool) {
	d.mu.Lock()
	applied := false
	if vendor != nil && gen > d.vendorApplied {
		d.vendor = vendor
		d.vendorApplied = gen
		applied = true
	}
	if hasOrders && gen > d.ordersApplied {
		d.orders = orders
		d.ordersApplied = gen
		applied = true
	}
	if !applied {
		d.mu.Unlock()
		d.logger.Debug("Dropping stale dashboard fetch", zap.Uint64("generation", gen))
		return
	}
	d.err = nil
	d.updatedAt = time.Now()
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if d.cfg.OnUpdate != nil {
		d.cfg.OnUpdate(snap)
	}
}

func (d *Dashboard) applyErr(gen uint64, err error) {
	d.mu.Lock()
	if gen < d.ordersApplied || gen < d.vendorApplied {
		d.mu.Unlock()
		return
	}
	d.err = err
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if d.cfg.OnUpdate != nil {
		d.cfg.OnUpdate(snap)
	}
}

func (d *Dashboard) snapshotLocked() Snapshot {
	return Snapshot{
		Vendor:    d.vendor,
		Orders:    append([]model.Order(nil), d.orders...),
		Err:       d.err,
		UpdatedAt: d.updatedAt,
	}
}
