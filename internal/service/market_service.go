package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"infrastreet/marketplace/internal/model"
)

const recommendationTTL = 5 * time.Minute

var ErrNoPhone = errors.New("no phone number on file")

type HistoryClient interface {
	CustomerOrders(ctx context.Context, phone string) ([]model.Order, error)
	Recommendations(ctx context.Context, phone string) ([]model.Vendor, error)
}

// History is a customer's past orders plus vendors suggested from them. A failed half is
// reported in its Err field and left empty.
type History struct {
	Orders             []model.Order
	Recommendations    []model.Vendor
	OrdersErr          error
	RecommendationsErr error
}

type cachedRecommendations struct {
	vendors []model.Vendor
	expiry  time.Time
}

type MarketService struct {
	client HistoryClient
	logger *zap.Logger
	now    func() time.Time

	cacheMu   sync.RWMutex
	cacheData map[string]cachedRecommendations
}

func NewMarketService(client HistoryClient, logger *zap.Logger) *MarketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketService{
		client:    client,
		logger:    logger,
		now:       time.Now,
		cacheData: make(map[string]cachedRecommendations),
	}
}

// History fetches orders and recommendations in parallel. Neither failure fails the call.
func (s *MarketService) History(ctx context.Context, phone string) (*History, error) {
	if phone == "" {
		return nil, ErrNoPhone
	}

	h := &History{Orders: []model.Order{}, Recommendations: []model.Vendor{}}

	var g errgroup.Group
	g.Go(func() error {
		orders, err := s.client.CustomerOrders(ctx, phone)
		if err != nil {
			h.OrdersErr = err
			s.logger.Warn("Failed to load order history", zap.Error(err))
			return nil
		}
		if orders != nil {
			h.Orders = orders
		}
		return nil
	})
	g.Go(func() error {
		vendors, err := s.Recommendations(ctx, phone)
		if err != nil {
			h.RecommendationsErr = err
			s.logger.Warn("Failed to load recommendations", zap.Error(err))
			return nil
		}
		if vendors != nil {
			h.Recommendations = vendors
		}
		return nil
	})
	_ = g.Wait()

	return h, nil
}

// Recommendations are cached per phone for a few minutes.
func (s *MarketService) Recommendations(ctx context.Context, phone string) ([]model.Vendor, error) {
	s.cacheMu.RLock()
	data, ok := s.cacheData[phone]
	if ok && s.now().Before(data.expiry) {
		s.cacheMu.RUnlock()
		return data.vendors, nil
	}
	s.cacheMu.RUnlock()

	vendors, err := s.client.Recommendations(ctx, phone)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.cacheMu.Lock()
	for p, entry := range s.cacheData {
		if !now.Before(entry.expiry) {
			delete(s.cacheData, p)
		}
	}
	s.cacheData[phone] = cachedRecommendations{
		vendors: vendors,
		expiry:  now.Add(recommendationTTL),
	}
	s.cacheMu.Unlock()

	return vendors, nil
}

// Forget drops cached recommendations for phone so the next lookup refetches them.
func (s *MarketService) Forget(phone string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.cacheData, phone)
}
