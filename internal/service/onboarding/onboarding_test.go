package onboarding

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/location"
	"infrastreet/marketplace/internal/session"
)

type fakeClient struct {
	registered []backend.RegisterUserRequest
	created    []backend.CreateVendorRequest
	uploadName string
	uploadErr  error
	lookupErr  error
}

func (f *fakeClient) RegisterUser(ctx context.Context, req backend.RegisterUserRequest) (*model.Registration, error) {
	f.registered = append(f.registered, req)
	return &model.Registration{User: model.User{UserID: "u1", Phone: req.Phone, Role: req.Role}}, nil
}

func (f *fakeClient) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &model.User{UserID: "u1", Phone: phone, Role: model.RoleCustomer}, nil
}

func (f *fakeClient) CreateVendor(ctx context.Context, req backend.CreateVendorRequest) (*model.Vendor, error) {
	f.created = append(f.created, req)
	return &model.Vendor{VendorID: "v1", Name: req.Name}, nil
}

func (f *fakeClient) UploadMenu(ctx context.Context, vendorID, filename string, image io.Reader) (*backend.MenuUploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploadName = filename
	return &backend.MenuUploadResult{ItemsExtracted: 6}, nil
}

var here = &model.Location{Lat: 40.7, Lng: -73.9}

func TestNormalizePhone(t *testing.T) {
	p, err := NormalizePhone(" +1 (555) 123-4567 ")
	require.NoError(t, err)
	assert.Equal(t, "+1 (555) 123-4567", p)

	_, err = NormalizePhone("555-1234")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	_, err = NormalizePhone("")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestRegisterCustomer(t *testing.T) {
	client := &fakeClient{}
	sessions := session.NewManager(session.NewMemoryStore(), nil, nil)
	svc := NewService(client, sessions, location.NewStatic(here), nil)

	_, err := svc.RegisterCustomer(context.Background(), "123")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Empty(t, client.registered)

	reg, err := svc.RegisterCustomer(context.Background(), "5551234567")
	require.NoError(t, err)
	assert.Equal(t, "u1", reg.UserID)
	assert.Equal(t, model.RoleCustomer, client.registered[0].Role)
	assert.Equal(t, "5551234567", sessions.Current().Phone)
}

func TestRegisterVendor(t *testing.T) {
	client := &fakeClient{}
	sessions := session.NewManager(session.NewMemoryStore(), nil, nil)
	svc := NewService(client, sessions, location.NewStatic(here), nil)

	res, err := svc.RegisterVendor(context.Background(), VendorSignup{
		Name:         "Taqueria Luz",
		Phone:        "5551234567",
		MenuFilename: "board.gif",
		MenuImage:    []byte("GIF89a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Vendor.VendorID)
	assert.Equal(t, 6, res.Upload.ItemsExtracted)
	assert.Equal(t, "board.gif", client.uploadName)

	require.Len(t, client.created, 1)
	assert.Equal(t, 40.7, client.created[0].Lat)
	assert.Equal(t, -73.9, client.created[0].Lng)
	assert.Equal(t, model.RoleVendor, client.registered[0].Role)

	st := sessions.Current()
	assert.Equal(t, "v1", st.VendorID)
	assert.Equal(t, "5551234567", st.Phone)
}

func TestRegisterVendor_Validation(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(client, session.NewManager(session.NewMemoryStore(), nil, nil), location.NewStatic(nil), nil)

	_, err := svc.RegisterVendor(context.Background(), VendorSignup{Phone: "5551234567"})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = svc.RegisterVendor(context.Background(), VendorSignup{Name: "Cart", Phone: "5551234567"})
	assert.ErrorIs(t, err, location.ErrUnavailable)
	assert.Empty(t, client.registered)
}

func TestRegisterVendor_UploadFailureKeepsVendor(t *testing.T) {
	client := &fakeClient{uploadErr: errors.New("timeout")}
	sessions := session.NewManager(session.NewMemoryStore(), nil, nil)
	svc := NewService(client, sessions, location.NewStatic(here), nil)

	res, err := svc.RegisterVendor(context.Background(), VendorSignup{
		Name: "Cart", Phone: "5551234567", MenuFilename: "m.jpg", MenuImage: []byte("x"),
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "v1", res.Vendor.VendorID)
	assert.Equal(t, "v1", sessions.Current().VendorID)
}

func TestRestore(t *testing.T) {
	client := &fakeClient{}
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, nil, nil)
	svc := NewService(client, sessions, nil, nil)

	u, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, store.Set(context.Background(), session.KeyPhone, "5551234567"))
	u, err = svc.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "5551234567", u.Phone)

	client.lookupErr = &backend.ErrorResponse{StatusCode: 404, Detail: "User not found"}
	u, err = svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)

	client.lookupErr = errors.New("dial tcp: refused")
	_, err = svc.Restore(context.Background())
	assert.Error(t, err)
}
