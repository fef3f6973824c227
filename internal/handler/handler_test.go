package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/handler"
	"infrastreet/marketplace/internal/service"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/tools"
)

func setupHandler(t *testing.T, backendFn http.HandlerFunc) *handler.Handler {
	t.Helper()

	ts := httptest.NewServer(backendFn)
	t.Cleanup(ts.Close)

	client := backend.NewClient(backend.Config{APIURL: ts.URL}, nil)
	registry := tools.NewRegistry(client, nil)
	mcp := tools.NewServer(registry, "infrastreet", "test", nil)
	history := handler.NewHistoryHandler(service.NewMarketService(client, nil))

	return handler.NewHandler(mcp, history, nil)
}

func TestHealthCheck(t *testing.T) {
	h := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestListTools(t *testing.T) {
	h := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tools", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Tools, 8)
}

func TestCallTool_StatusMapping(t *testing.T) {
	h := setupHandler(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/o1":
			w.Write([]byte(`{"orderId":"o1","vendorId":"v1","status":"preparing","items":[]}`))
		case "/orders/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Order not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	cases := []struct {
		name   string
		tool   string
		body   string
		status int
		want   string
	}{
		{"success", "getOrderStatus", `{"orderId":"o1"}`, http.StatusOK, `"status":"preparing"`},
		{"validation", "getOrderStatus", `{}`, http.StatusBadRequest, "orderId is required"},
		{"unknown tool", "dropTables", `{}`, http.StatusNotFound, "unknown tool"},
		{"backend 404", "getOrderStatus", `{"orderId":"missing"}`, http.StatusNotFound, "Order not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/tools/"+tc.tool, strings.NewReader(tc.body))
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.want)
		})
	}
}

func TestMCPEndpoint(t *testing.T) {
	h := setupHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"searchVendors"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestGetHistory_DegradesToEmpty(t *testing.T) {
	h := setupHandler(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/customer/5551234567":
			w.Write([]byte(`{"orders":[{"orderId":"o1","vendorId":"v1","status":"ready","items":[]}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/customers/5551234567/history", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body handler.HistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Orders, 1)
	assert.Empty(t, body.Recommendations)
	assert.Equal(t, []string{"recommendations unavailable"}, body.Errors)
}

func TestGetHistory_RefreshRefetchesRecommendations(t *testing.T) {
	var recCalls atomic.Int32
	h := setupHandler(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/customer/5551234567":
			w.Write([]byte(`{"orders":[]}`))
		case "/orders/recommendations/5551234567":
			recCalls.Add(1)
			w.Write([]byte(`{"vendors":[{"vendorId":"v1","name":"Tacos"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	for _, target := range []string{
		"/v1/customers/5551234567/history",
		"/v1/customers/5551234567/history",
		"/v1/customers/5551234567/history?refresh=true",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, int32(2), recCalls.Load())
}
