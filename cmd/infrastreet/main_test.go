package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/dashboard"
	"infrastreet/marketplace/internal/service/location"
)

func TestParseItems(t *testing.T) {
	order, qty, err := parseItems([]string{"taco=2", "horchata", "taco"})
	require.NoError(t, err)
	assert.Equal(t, []string{"taco", "horchata"}, order)
	assert.Equal(t, map[string]int{"taco": 3, "horchata": 1}, qty)

	for _, bad := range []string{"taco=0", "taco=x", "=2", " "} {
		_, _, err := parseItems([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, dashboard.Snapshot{
		Vendor: &model.Vendor{Name: "Tacos El Gordo"},
		Orders: []model.Order{
			{OrderID: "o1", Status: model.StatusPending, Items: []model.OrderItem{{ItemID: "t1", Name: "Taco", Quantity: 2}}},
			{OrderID: "o2", Status: model.StatusReady},
		},
		UpdatedAt: time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC),
	})

	out := buf.String()
	assert.Contains(t, out, "Tacos El Gordo  12:30:00")
	assert.Contains(t, out, "o1  pending")
	assert.Contains(t, out, "2x Taco")
	assert.NotContains(t, out, "o2")
}

// fakeBackend answers the handful of endpoints the customer commands touch.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var req backend.RegisterUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(model.Registration{
			User: model.User{UserID: "u1", Phone: req.Phone, Role: req.Role},
		})
	})
	mux.HandleFunc("GET /users/phone/{phone}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.User{UserID: "u1", Phone: r.PathValue("phone"), Role: model.RoleCustomer})
	})
	var vendorCalls atomic.Int32
	mux.HandleFunc("GET /vendors/v1", func(w http.ResponseWriter, r *http.Request) {
		// The burrito goes up by a dollar after the first menu fetch.
		burrito := 5.0
		if vendorCalls.Add(1) > 1 {
			burrito = 6.0
		}
		json.NewEncoder(w).Encode(model.Vendor{VendorID: "v1", Name: "Tacos El Gordo", Menu: []model.MenuItem{
			{ItemID: "A", Name: "Al pastor", Price: 3.0},
			{ItemID: "B", Name: "Burrito", Price: burrito},
		}})
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(backend.HeaderIdempotencyKey))
		var req backend.PlaceOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "555-123-4567", req.CustomerPhone)
		assert.Len(t, req.Items, 2)
		w.Write([]byte(`{"orderId":"o1","vendorId":"v1","status":"pending","items":[],"pickupCode":"K7Q2"}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	if app != nil {
		app.Close()
		app = nil
	}
	return out.String(), err
}

func TestCustomerSession(t *testing.T) {
	ts := fakeBackend(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("INFRASTREET_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BACKEND_URL", ts.URL)
	t.Setenv("SESSION_DB_PATH", filepath.Join(dir, "session.db"))

	out, err := execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	out, err = execute(t, "signup", "--phone", "555-123-4567")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome to InfraStreet, 555-123-4567.")

	// The phone survives into the next invocation through the session store.
	out, err = execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "555-123-4567 (customer)")

	out, err = executeWithInput(t, "y\n", "order", "v1", "--item", "A=2", "--item", "B")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: $11.00")
	assert.Contains(t, out, "Place this order? [y/N]")
	assert.Contains(t, out, "Prices changed, new total: $12.00")
	assert.Contains(t, out, "Pickup code: K7Q2")

	out, err = execute(t, "signout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, err = execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestOrders_RequiresSignIn(t *testing.T) {
	ts := fakeBackend(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("INFRASTREET_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BACKEND_URL", ts.URL)
	t.Setenv("SESSION_DB_PATH", filepath.Join(dir, "session.db"))

	_, err := execute(t, "orders")
	assert.ErrorContains(t, err, "run 'infrastreet signup' first")

	_, err = execute(t, "dashboard")
	assert.Error(t, err)
}

func TestLocationFrom_RequiresBothCoordinates(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().Float64Var(&latFlag, "lat", 0, "")
		cmd.Flags().Float64Var(&lngFlag, "lng", 0, "")
		return cmd
	}
	t.Cleanup(func() { latFlag, lngFlag = 0, 0 })

	provider, err := locationFrom(newCmd())
	require.NoError(t, err)
	_, err = provider.Current(context.Background())
	assert.ErrorIs(t, err, location.ErrUnavailable)

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("lat", "40.7"))
	_, err = locationFrom(cmd)
	assert.ErrorContains(t, err, "--lat and --lng must be given together")

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("lat", "40.7"))
	require.NoError(t, cmd.Flags().Set("lng", "-74"))
	provider, err = locationFrom(cmd)
	require.NoError(t, err)
	loc, err := provider.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Location{Lat: 40.7, Lng: -74}, loc)

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("lat", "95"))
	require.NoError(t, cmd.Flags().Set("lng", "0"))
	_, err = locationFrom(cmd)
	assert.Error(t, err)
}
