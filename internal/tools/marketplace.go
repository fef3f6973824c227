package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/location"
)

// defaultMenuFilename names the multipart file part when the caller gives none.
const defaultMenuFilename = "menu.jpg"

type prop struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Items       any    `json:"items,omitempty"`
}

func objectSchema(props map[string]prop, required ...string) json.RawMessage {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("tools: bad schema: %v", err))
	}
	return data
}

var orderItemsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"itemId":   map[string]string{"type": "string", "description": "Menu item ID"},
		"quantity": map[string]any{"type": "integer", "minimum": 1, "description": "Quantity"},
	},
	"required": []string{"itemId", "quantity"},
}

func (r *Registry) registerDefaults() {
	r.Register("findNearbyDeals", "Find nearby flash deals",
		objectSchema(map[string]prop{
			"lat": {Type: "number", Description: "User latitude"},
			"lng": {Type: "number", Description: "User longitude"},
		}, "lat", "lng"),
		r.findNearbyDeals)

	r.Register("createDeal", "Create a flash deal for a vendor",
		objectSchema(map[string]prop{
			"vendorId":      {Type: "string", Description: "Vendor ID"},
			"itemName":      {Type: "string", Description: "Item name for the deal"},
			"dealPrice":     {Type: "number", Description: "Discounted price"},
			"originalPrice": {Type: "number", Description: "Original price"},
			"expiresAt":     {Type: "string", Description: "Deal expiration ISO timestamp"},
		}, "vendorId", "itemName", "dealPrice", "expiresAt"),
		r.createDeal)

	r.Register("createVendor", "Register a new street vendor",
		objectSchema(map[string]prop{
			"name":          {Type: "string", Description: "Vendor/business name"},
			"phone":         {Type: "string", Description: "Phone number"},
			"lat":           {Type: "number", Description: "Latitude"},
			"lng":           {Type: "number", Description: "Longitude"},
			"businessHours": {Type: "string", Description: "Business hours"},
		}, "name", "phone", "lat", "lng"),
		r.createVendor)

	r.Register("processMenuImage", "Upload a menu photo and extract its items",
		objectSchema(map[string]prop{
			"vendorId":    {Type: "string", Description: "Vendor ID"},
			"imageBase64": {Type: "string", Description: "Base64 encoded menu image"},
			"filename":    {Type: "string", Description: "Image filename"},
		}, "vendorId", "imageBase64"),
		r.processMenuImage)

	r.Register("addMenuItem", "Add a single item to a vendor menu",
		objectSchema(map[string]prop{
			"vendorId":    {Type: "string", Description: "Vendor ID"},
			"itemName":    {Type: "string", Description: "Item name"},
			"price":       {Type: "number", Description: "Item price"},
			"description": {Type: "string", Description: "Item description"},
		}, "vendorId", "itemName", "price"),
		r.addMenuItem)

	r.Register("placeOrder", "Place an order with a street vendor",
		objectSchema(map[string]prop{
			"vendorId":      {Type: "string", Description: "Vendor ID"},
			"customerPhone": {Type: "string", Description: "Customer phone number"},
			"items":         {Type: "array", Description: "Order items, as an array or a JSON string of one", Items: orderItemsSchema},
		}, "vendorId", "items"),
		r.placeOrder)

	r.Register("getOrderStatus", "Get order status",
		objectSchema(map[string]prop{
			"orderId": {Type: "string", Description: "Order ID"},
		}, "orderId"),
		r.getOrderStatus)

	r.Register("searchVendors", "Search nearby street vendors by food or product",
		objectSchema(map[string]prop{
			"query": {Type: "string", Description: "Food or product user is looking for"},
			"lat":   {Type: "number", Description: "User latitude"},
			"lng":   {Type: "number", Description: "User longitude"},
		}, "query", "lat", "lng"),
		r.searchVendors)
}

func requireString(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "is required")
	}
	return v, nil
}

func requireLocation(lat, lng *float64) (model.Location, error) {
	if lat == nil {
		return model.Location{}, invalid("lat", "is required")
	}
	if lng == nil {
		return model.Location{}, invalid("lng", "is required")
	}
	loc := model.Location{Lat: *lat, Lng: *lng}
	if err := location.Validate(loc); err != nil {
		return model.Location{}, &ValidationError{Message: err.Error()}
	}
	return loc, nil
}

func (r *Registry) findNearbyDeals(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	loc, err := requireLocation(in.Lat, in.Lng)
	if err != nil {
		return nil, err
	}

	deals, err := r.backend.NearbyDeals(ctx, loc)
	if err != nil {
		return nil, err
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	return map[string]any{"deals": deals}, nil
}

func (r *Registry) createDeal(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		VendorID      string   `json:"vendorId"`
		ItemName      string   `json:"itemName"`
		DealPrice     *float64 `json:"dealPrice"`
		OriginalPrice *float64 `json:"originalPrice"`
		ExpiresAt     string   `json:"expiresAt"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	req := backend.CreateDealRequest{}
	var err error
	if req.VendorID, err = requireString("vendorId", in.VendorID); err != nil {
		return nil, err
	}
	if req.ItemName, err = requireString("itemName", in.ItemName); err != nil {
		return nil, err
	}
	if in.DealPrice == nil {
		return nil, invalid("dealPrice", "is required")
	}
	if *in.DealPrice < 0 {
		return nil, invalid("dealPrice", "must not be negative")
	}
	req.DealPrice = *in.DealPrice
	if in.OriginalPrice != nil && *in.OriginalPrice > 0 {
		req.OriginalPrice = in.OriginalPrice
	}
	if req.ExpiresAt, err = requireString("expiresAt", in.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := model.ParseTimestamp(req.ExpiresAt); err != nil {
		return nil, invalid("expiresAt", "must be an ISO-8601 timestamp")
	}

	return r.backend.CreateDeal(ctx, req)
}

func (r *Registry) createVendor(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Name          string   `json:"name"`
		Phone         string   `json:"phone"`
		Lat           *float64 `json:"lat"`
		Lng           *float64 `json:"lng"`
		BusinessHours string   `json:"businessHours"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	req := backend.CreateVendorRequest{BusinessHours: strings.TrimSpace(in.BusinessHours)}
	var err error
	if req.Name, err = requireString("name", in.Name); err != nil {
		return nil, err
	}
	if req.Phone, err = requireString("phone", in.Phone); err != nil {
		return nil, err
	}
	loc, err := requireLocation(in.Lat, in.Lng)
	if err != nil {
		return nil, err
	}
	req.Lat, req.Lng = loc.Lat, loc.Lng

	return r.backend.CreateVendor(ctx, req)
}

func (r *Registry) processMenuImage(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		VendorID    string `json:"vendorId"`
		ImageBase64 string `json:"imageBase64"`
		Filename    string `json:"filename"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	vendorID, err := requireString("vendorId", in.VendorID)
	if err != nil {
		return nil, err
	}
	encoded, err := requireString("imageBase64", in.ImageBase64)
	if err != nil {
		return nil, err
	}
	// Accept data URLs as well as bare base64.
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalid("imageBase64", "is not valid base64")
	}

	if len(data) == 0 {
		return nil, invalid("imageBase64", "is empty")
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = defaultMenuFilename
	}
	return r.backend.UploadMenu(ctx, vendorID, filename, bytes.NewReader(data))
}

func (r *Registry) addMenuItem(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		VendorID    string   `json:"vendorId"`
		ItemName    string   `json:"itemName"`
		Price       *float64 `json:"price"`
		Description string   `json:"description"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	vendorID, err := requireString("vendorId", in.VendorID)
	if err != nil {
		return nil, err
	}
	name, err := requireString("itemName", in.ItemName)
	if err != nil {
		return nil, err
	}
	if in.Price == nil {
		return nil, invalid("price", "is required")
	}
	if *in.Price <= 0 {
		return nil, invalid("price", "must be greater than 0")
	}

	return r.backend.AddMenuItem(ctx, vendorID, backend.AddMenuItemRequest{
		ItemName:    name,
		Price:       *in.Price,
		Description: strings.TrimSpace(in.Description),
	})
}

func (r *Registry) placeOrder(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		VendorID      string          `json:"vendorId"`
		CustomerPhone string          `json:"customerPhone"`
		Items         json.RawMessage `json:"items"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	vendorID, err := requireString("vendorId", in.VendorID)
	if err != nil {
		return nil, err
	}
	lines, err := parseOrderLines(in.Items)
	if err != nil {
		return nil, err
	}
	return r.backend.PlaceOrder(ctx, backend.PlaceOrderRequest{
		VendorID:      vendorID,
		CustomerPhone: in.CustomerPhone,
		Items:         lines,
	})
}

// parseOrderLines accepts the items either as a JSON array or as a string holding one.
func parseOrderLines(raw json.RawMessage) ([]backend.OrderLine, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, invalid("items", "is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid("items", "is not a valid string")
		}
		raw = json.RawMessage(strings.TrimSpace(s))
	}

	var lines []backend.OrderLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, invalid("items", "must be an array of {itemId, quantity}")
	}
	if len(lines) == 0 {
		return nil, invalid("items", "must not be empty")
	}
	for i, l := range lines {
		if strings.TrimSpace(l.ItemID) == "" {
			return nil, invalid(fmt.Sprintf("items[%d].itemId", i), "is required")
		}
		if l.Quantity < 1 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}
	return lines, nil
}

func (r *Registry) getOrderStatus(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		OrderID string `json:"orderId"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	orderID, err := requireString("orderId", in.OrderID)
	if err != nil {
		return nil, err
	}
	return r.backend.GetOrder(ctx, orderID)
}

func (r *Registry) searchVendors(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query string   `json:"query"`
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	query, err := requireString("query", in.Query)
	if err != nil {
		return nil, err
	}
	loc, err := requireLocation(in.Lat, in.Lng)
	if err != nil {
		return nil, err
	}

	res, err := r.backend.SearchNearby(ctx, query, loc)
	if err != nil {
		return nil, err
	}
	if res.Results == nil {
		res.Results = []model.Vendor{}
	}
	return res, nil
}
