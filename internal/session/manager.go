package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
)

var ErrNotSignedIn = errors.New("not signed in")

type State struct {
	Phone    string
	User     *model.User
	VendorID string
}

func (s State) SignedIn() bool {
	return s.Phone != ""
}

// Manager is the single owner of persisted identity. Surfaces read it through Current and
// never touch the store directly.
type Manager struct {
	store  Store
	bus    Broadcaster
	origin string
	logger *zap.Logger

	mu    sync.RWMutex
	state State
}

func NewManager(store Store, bus Broadcaster, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = NewLocalBroadcaster()
	}
	return &Manager{
		store:  store,
		bus:    bus,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Load reads persisted identity into memory. A corrupt user record is dropped rather than
// failing the load.
func (m *Manager) Load(ctx context.Context) error {
	var st State

	phone, _, err := m.store.Get(ctx, KeyPhone)
	if err != nil {
		return fmt.Errorf("failed to read session phone: %w", err)
	}
	st.Phone = phone

	raw, ok, err := m.store.Get(ctx, KeyUser)
	if err != nil {
		return fmt.Errorf("failed to read session user: %w", err)
	}
	if ok && raw != "" {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			m.logger.Warn("Ignoring unreadable stored user", zap.Error(err))
		} else {
			st.User = &u
		}
	}

	vendorID, _, err := m.store.Get(ctx, KeyVendorID)
	if err != nil {
		return fmt.Errorf("failed to read session vendor id: %w", err)
	}
	st.VendorID = vendorID

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return nil
}

func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

func (m *Manager) SignIn(ctx context.Context, user model.User) error {
	if user.Phone == "" {
		return errors.New("user phone is required")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := m.store.Set(ctx, KeyPhone, user.Phone); err != nil {
		return fmt.Errorf("failed to save session phone: %w", err)
	}
	if err := m.store.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to save session user: %w", err)
	}

	m.mu.Lock()
	if m.state.Phone != user.Phone {
		m.state.VendorID = ""
	}
	m.state.Phone = user.Phone
	m.state.User = &user
	m.mu.Unlock()

	m.publish(ctx, EventSignIn, user.Phone)
	return nil
}

func (m *Manager) SetVendor(ctx context.Context, vendorID string) error {
	m.mu.RLock()
	signedIn := m.state.Phone != ""
	m.mu.RUnlock()
	if !signedIn {
		return ErrNotSignedIn
	}
	if err := m.store.Set(ctx, KeyVendorID, vendorID); err != nil {
		return fmt.Errorf("failed to save vendor id: %w", err)
	}
	m.mu.Lock()
	m.state.VendorID = vendorID
	m.mu.Unlock()
	return nil
}

// SignOut clears every persisted key and tells other surfaces to drop their copy.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	phone := m.state.Phone
	m.state = State{}
	m.mu.Unlock()

	if err := m.store.Delete(ctx, AllKeys...); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.publish(ctx, EventSignOut, phone)
	return nil
}

// Watch applies sign-outs published by other surfaces until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	events, stop, err := m.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev Event) {
	if ev.Origin == m.origin || ev.Kind != EventSignOut {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Phone != "" && ev.Phone != m.state.Phone {
		return
	}
	m.state = State{}
	m.logger.Info("Session invalidated by another surface", zap.String("origin", ev.Origin))
}

func (m *Manager) publish(ctx context.Context, kind EventKind, phone string) {
	ev := Event{Kind: kind, Phone: phone, Origin: m.origin, At: time.Now().UTC()}
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.logger.Warn("Failed to broadcast session event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
