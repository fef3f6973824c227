package onboarding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/location"
	"infrastreet/marketplace/internal/service/menuimage"
	"infrastreet/marketplace/internal/session"
)

// MinPhoneDigits is the number of digits a phone number needs after formatting is stripped.
const MinPhoneDigits = 10

var (
	ErrInvalidPhone = errors.New("please enter a valid phone number")
	ErrMissingName  = errors.New("business name is required")
)

type Client interface {
	RegisterUser(ctx context.Context, req backend.RegisterUserRequest) (*model.Registration, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	CreateVendor(ctx context.Context, req backend.CreateVendorRequest) (*model.Vendor, error)
	UploadMenu(ctx context.Context, vendorID, filename string, image io.Reader) (*backend.MenuUploadResult, error)
}

// NormalizePhone trims the input and checks that it carries at least MinPhoneDigits digits.
// The number is kept as typed since the backend keys users by it.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < MinPhoneDigits {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

type Service struct {
	client   Client
	sessions *session.Manager
	location location.Provider
	logger   *zap.Logger
}

func NewService(client Client, sessions *session.Manager, loc location.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, sessions: sessions, location: loc, logger: logger}
}

// RegisterCustomer registers (or re-identifies) a customer and stores the session.
func (s *Service) RegisterCustomer(ctx context.Context, phone string) (*model.Registration, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	reg, err := s.client.RegisterUser(ctx, backend.RegisterUserRequest{Phone: phone, Role: model.RoleCustomer})
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	user := reg.User
	if user.Phone == "" {
		user.Phone = phone
	}
	if err := s.sessions.SignIn(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("Customer registered",
		zap.String("user_id", user.UserID),
		zap.Bool("existing", reg.IsExisting),
	)
	return reg, nil
}

type VendorSignup struct {
	Name          string
	Phone         string
	BusinessHours string
	// Optional menu photo uploaded after the vendor is created.
	MenuFilename string
	MenuImage    []byte
}

type VendorResult struct {
	User     model.User
	Vendor   *model.Vendor
	Upload   *backend.MenuUploadResult
	Location model.Location
}

// RegisterVendor creates the vendor at the current location. A failed menu upload does not
// undo the vendor; the error is returned alongside the result.
func (s *Service) RegisterVendor(ctx context.Context, in VendorSignup) (*VendorResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if s.location == nil {
		return nil, location.ErrUnavailable
	}
	loc, err := s.location.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", location.ErrUnavailable, err)
	}

	reg, err := s.client.RegisterUser(ctx, backend.RegisterUserRequest{Phone: phone, Role: model.RoleVendor, Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to register vendor user: %w", err)
	}

	vendor, err := s.client.CreateVendor(ctx, backend.CreateVendorRequest{
		Name:          name,
		Phone:         phone,
		Lat:           loc.Lat,
		Lng:           loc.Lng,
		BusinessHours: strings.TrimSpace(in.BusinessHours),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}

	user := reg.User
	if user.Phone == "" {
		user.Phone = phone
	}
	if err := s.sessions.SignIn(ctx, user); err != nil {
		return nil, err
	}
	if err := s.sessions.SetVendor(ctx, vendor.VendorID); err != nil {
		return nil, err
	}
	s.logger.Info("Vendor onboarded", zap.String("vendor_id", vendor.VendorID))

	res := &VendorResult{User: user, Vendor: vendor, Location: loc}
	if len(in.MenuImage) == 0 {
		return res, nil
	}

	img, err := menuimage.Prepare(in.MenuImage, in.MenuFilename)
	if err != nil {
		return res, err
	}
	upload, err := s.client.UploadMenu(ctx, vendor.VendorID, img.Filename, bytes.NewReader(img.Data))
	if err != nil {
		return res, fmt.Errorf("vendor created but menu upload failed: %w", err)
	}
	res.Upload = upload
	return res, nil
}

// Restore re-identifies the stored phone with the backend. It returns nil when nobody is
// signed in or the backend no longer knows the number.
func (s *Service) Restore(ctx context.Context) (*model.User, error) {
	if err := s.sessions.Load(ctx); err != nil {
		return nil, err
	}
	st := s.sessions.Current()
	if !st.SignedIn() {
		return nil, nil
	}

	user, err := s.client.GetUserByPhone(ctx, st.Phone)
	if err != nil {
		if backend.IsNotFound(err) {
			s.logger.Info("Stored phone is unknown to the backend")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}
