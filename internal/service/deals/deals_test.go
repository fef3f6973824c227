package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/location"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func deal(id string, expires time.Time) model.Deal {
	return model.Deal{DealID: id, ExpiresAt: model.NewTimestamp(expires), DealPrice: 4}
}

func TestActive(t *testing.T) {
	in := []model.Deal{
		deal("past", now.Add(-time.Minute)),
		deal("exact", now),
		deal("soon", now.Add(30*time.Second)),
		{DealID: "no-expiry"},
		deal("later", now.Add(2*time.Hour)),
	}

	got := Active(in, now)
	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.DealID)
	}
	assert.Equal(t, []string{"soon", "later"}, ids)
	assert.Empty(t, Active(nil, now))
}

func TestTimeLeft(t *testing.T) {
	left, ok := TimeLeft(deal("a", now.Add(65*time.Minute+30*time.Second)), now)
	require.True(t, ok)
	assert.Equal(t, "1h 5m", FormatTimeLeft(left))

	left, ok = TimeLeft(deal("b", now.Add(5*time.Minute)), now)
	require.True(t, ok)
	assert.Equal(t, "5m", FormatTimeLeft(left))

	_, ok = TimeLeft(deal("c", now.Add(-time.Second)), now)
	assert.False(t, ok)

	assert.Equal(t, "0m", FormatTimeLeft(20*time.Second))
	assert.Equal(t, "2h 0m", FormatTimeLeft(2*time.Hour))
}

func TestSavings(t *testing.T) {
	orig := 10.0
	d := model.Deal{DealPrice: 7.5, OriginalPrice: &orig}
	assert.Equal(t, 25, Savings(d))
	assert.True(t, HasBadge(d))

	d.DealPrice = 8.5
	assert.Equal(t, 15, Savings(d))
	assert.False(t, HasBadge(d))

	assert.Equal(t, 0, Savings(model.Deal{DealPrice: 3}))
	zero := 0.0
	assert.Equal(t, 0, Savings(model.Deal{DealPrice: 3, OriginalPrice: &zero}))
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "850m", FormatDistance(850))
	assert.Equal(t, "999m", FormatDistance(999.4))
	assert.Equal(t, "1.2km", FormatDistance(1234))
	assert.Equal(t, "12.0km", FormatDistance(12000))
}

type fakeLister struct {
	got   model.Location
	deals []model.Deal
	err   error
}

func (f *fakeLister) NearbyDeals(ctx context.Context, loc model.Location) ([]model.Deal, error) {
	f.got = loc
	return f.deals, f.err
}

func TestFeed_UsesCurrentLocationAndOneClockReading(t *testing.T) {
	lister := &fakeLister{deals: []model.Deal{
		deal("gone", now.Add(-time.Second)),
		deal("live", now.Add(time.Hour)),
	}}
	calls := 0
	clock := func() time.Time {
		calls++
		return now
	}
	feed := NewFeed(lister, location.NewStatic(&model.Location{Lat: 34, Lng: -118}), WithClock(clock))

	res, err := feed.Nearby(context.Background())
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, model.Location{Lat: 34, Lng: -118}, lister.got)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, "live", res.Deals[0].DealID)
	assert.Equal(t, 1, calls)
	assert.Equal(t, now, res.At)
}

func TestFeed_FallsBackWithoutLocation(t *testing.T) {
	lister := &fakeLister{}
	feed := NewFeed(lister, location.NewStatic(nil), WithClock(func() time.Time { return now }))

	res, err := feed.Nearby(context.Background())
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, location.DefaultFallback, lister.got)
	assert.Empty(t, res.Deals)
}

func TestFeed_BackendError(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	feed := NewFeed(lister, nil)

	_, err := feed.Nearby(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list nearby deals")
}
