package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/service/backend"
)

func newTestRegistry(t *testing.T, h http.HandlerFunc) *Registry {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewRegistry(backend.NewClient(backend.Config{APIURL: ts.URL}, nil), nil)
}

func failOnCall(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected backend call: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestRegistry_ListsEightTools(t *testing.T) {
	r := NewRegistry(nil, nil)
	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(tool.InputSchema, &schema), tool.Name)
		assert.Equal(t, "object", schema["type"], tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, []string{
		"addMenuItem", "createDeal", "createVendor", "findNearbyDeals",
		"getOrderStatus", "placeOrder", "processMenuImage", "searchVendors",
	}, names)
}

func TestRegistry_UnknownTool(t *testing.T) {
	_, err := NewRegistry(nil, nil).Call(context.Background(), "deleteEverything", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestPlaceOrder_ItemsAsString(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/orders", req.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "v1", body["vendorId"])
		_, hasPhone := body["customerPhone"]
		assert.False(t, hasPhone, "an omitted phone is forwarded as omitted")
		assert.Equal(t, []any{map[string]any{"itemId": "a", "quantity": 2.0}}, body["items"])
		w.Write([]byte(`{"orderId":"o1","vendorId":"v1","status":"pending","items":[],"pickupCode":"K42"}`))
	})

	res, err := r.Call(context.Background(), "placeOrder",
		json.RawMessage(`{"vendorId":"v1","items":"[{\"itemId\":\"a\",\"quantity\":2}]"}`))
	require.NoError(t, err)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"pickupCode":"K42"`)
}

func TestPlaceOrder_ItemsAsArray(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"orderId":"o2","status":"pending","items":[],"pickupCode":"Z1"}`))
	})

	_, err := r.Call(context.Background(), "placeOrder",
		json.RawMessage(`{"vendorId":"v1","customerPhone":"5551234567","items":[{"itemId":"a","quantity":1}]}`))
	require.NoError(t, err)
}

func TestValidation_NoBackendCall(t *testing.T) {
	r := newTestRegistry(t, failOnCall(t))

	cases := []struct {
		tool  string
		args  string
		field string
	}{
		{"placeOrder", `{"vendorId":"v1","items":[]}`, "items"},
		{"placeOrder", `{"vendorId":"v1","items":[{"itemId":"a","quantity":0}]}`, "items[0].quantity"},
		{"placeOrder", `{"vendorId":"v1","items":"not json"}`, "items"},
		{"placeOrder", `{"items":[{"itemId":"a","quantity":1}]}`, "vendorId"},
		{"findNearbyDeals", `{"lat":40}`, "lng"},
		{"searchVendors", `{"lat":40,"lng":-74}`, "query"},
		{"createDeal", `{"vendorId":"v1","itemName":"Taco","dealPrice":2,"expiresAt":"tomorrow"}`, "expiresAt"},
		{"createDeal", `{"vendorId":"v1","itemName":"Taco","expiresAt":"2025-06-01T12:00:00Z"}`, "dealPrice"},
		{"addMenuItem", `{"vendorId":"v1","itemName":"Taco","price":0}`, "price"},
		{"createVendor", `{"name":"Cart","lat":40,"lng":-74}`, "phone"},
		{"getOrderStatus", `{}`, "orderId"},
		{"processMenuImage", `{"vendorId":"v1","imageBase64":"%%%"}`, "imageBase64"},
	}
	for _, tc := range cases {
		t.Run(tc.tool+"/"+tc.field, func(t *testing.T) {
			_, err := r.Call(context.Background(), tc.tool, json.RawMessage(tc.args))
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}

	_, err := r.Call(context.Background(), "searchVendors", json.RawMessage(`{"query":"x","lat":95,"lng":0}`))
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = r.Call(context.Background(), "getOrderStatus", json.RawMessage(`[1,2]`))
	assert.ErrorAs(t, err, &vErr)
}

func TestFindNearbyDeals_WrapsList(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/deals", req.URL.Path)
		assert.Equal(t, "40.7", req.URL.Query().Get("lat"))
		w.Write([]byte(`[]`))
	})

	res, err := r.Call(context.Background(), "findNearbyDeals", json.RawMessage(`{"lat":40.7,"lng":-74}`))
	require.NoError(t, err)
	out, _ := json.Marshal(res)
	assert.JSONEq(t, `{"deals":[]}`, string(out))
}

func TestCreateDeal_DropsZeroOriginalPrice(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.NotContains(t, body, "originalPrice")
		assert.Equal(t, "2025-06-01T12:00:00Z", body["expiresAt"])
		w.Write([]byte(`{"dealId":"d1","vendorId":"v1","itemName":"Taco","dealPrice":2,"expiresAt":"2025-06-01T12:00:00Z"}`))
	})

	_, err := r.Call(context.Background(), "createDeal", json.RawMessage(
		`{"vendorId":"v1","itemName":"Taco","dealPrice":2,"originalPrice":0,"expiresAt":"2025-06-01T12:00:00Z"}`))
	require.NoError(t, err)
}

func TestProcessMenuImage_Uploads(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/vendors/v1/menu", req.URL.Path)
		file, header, err := req.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "GIF89a", string(data))
		assert.Equal(t, "menu.gif", header.Filename)
		w.Write([]byte(`{"itemsExtracted":3}`))
	})

	encoded := base64.StdEncoding.EncodeToString([]byte("GIF89a"))
	res, err := r.Call(context.Background(), "processMenuImage", json.RawMessage(
		`{"vendorId":"v1","filename":"menu.gif","imageBase64":"data:image/gif;base64,`+encoded+`"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, res.(*backend.MenuUploadResult).ItemsExtracted)
}

func TestProcessMenuImage_ForwardsBytesUnchanged(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewRGBA(image.Rect(0, 0, 2000, 10))))

	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		file, header, err := req.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, src.Bytes(), data)
		assert.Equal(t, "menu.png", header.Filename)
		w.Write([]byte(`{"itemsExtracted":0}`))
	})

	encoded := base64.StdEncoding.EncodeToString(src.Bytes())
	_, err := r.Call(context.Background(), "processMenuImage", json.RawMessage(
		`{"vendorId":"v1","filename":"menu.png","imageBase64":"`+encoded+`"}`))
	require.NoError(t, err)
}

func TestBackendErrorPassesThrough(t *testing.T) {
	r := newTestRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Order not found"}`))
	})

	_, err := r.Call(context.Background(), "getOrderStatus", json.RawMessage(`{"orderId":"nope"}`))
	require.Error(t, err)
	assert.True(t, backend.IsNotFound(err))
}
