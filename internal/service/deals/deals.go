package deals

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/location"
)

// BadgeThreshold is the savings percent at which a deal is highlighted.
const BadgeThreshold = 20

// Active keeps deals whose expiry is strictly after now. Deals without an expiry are dropped.
// The caller passes one clock reading so every deal is judged against the same instant.
func Active(deals []model.Deal, now time.Time) []model.Deal {
	out := make([]model.Deal, 0, len(deals))
	for _, d := range deals {
		if d.ExpiresAt.IsZero() {
			continue
		}
		if d.ExpiresAt.After(now) {
			out = append(out, d)
		}
	}
	return out
}

// TimeLeft returns the remaining lifetime of d, or false once it has expired.
func TimeLeft(d model.Deal, now time.Time) (time.Duration, bool) {
	if d.ExpiresAt.IsZero() {
		return 0, false
	}
	left := d.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// FormatTimeLeft renders "1h 5m" or "5m". Partial minutes are truncated.
func FormatTimeLeft(left time.Duration) string {
	if left < 0 {
		left = 0
	}
	hours := int(left / time.Hour)
	mins := int((left % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// Savings is the rounded discount percentage, 0 when no positive original price is known.
func Savings(d model.Deal) int {
	if d.OriginalPrice == nil || *d.OriginalPrice <= 0 {
		return 0
	}
	orig := *d.OriginalPrice
	return int(math.Round((orig - d.DealPrice) / orig * 100))
}

func HasBadge(d model.Deal) bool {
	return Savings(d) >= BadgeThreshold
}

// FormatDistance renders meters below one kilometer as "850m" and larger values as "1.2km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

type Lister interface {
	NearbyDeals(ctx context.Context, loc model.Location) ([]model.Deal, error)
}

type Feed struct {
	lister   Lister
	provider location.Provider
	fallback model.Location
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Feed)

func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

func WithFallback(loc model.Location) Option {
	return func(f *Feed) { f.fallback = loc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

func NewFeed(lister Lister, provider location.Provider, opts ...Option) *Feed {
	f := &Feed{
		lister:   lister,
		provider: provider,
		fallback: location.DefaultFallback,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type Result struct {
	Location     model.Location
	UsedFallback bool
	Deals        []model.Deal
	At           time.Time
}

// Nearby lists active deals around the current position, or around the fallback
// coordinate when no position is available.
func (f *Feed) Nearby(ctx context.Context) (*Result, error) {
	res := &Result{}

	loc, err := f.currentLocation(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.logger.Info("Location unavailable, using fallback for deals", zap.Error(err))
		loc = f.fallback
		res.UsedFallback = true
	}
	res.Location = loc

	all, err := f.lister.NearbyDeals(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to list nearby deals: %w", err)
	}

	res.At = f.now()
	res.Deals = Active(all, res.At)
	return res, nil
}

func (f *Feed) currentLocation(ctx context.Context) (model.Location, error) {
	if f.provider == nil {
		return model.Location{}, location.ErrUnavailable
	}
	return f.provider.Current(ctx)
}
