package model

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
)

type User struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
	Role   Role   `json:"role"`
	Name   string `json:"name,omitempty"`
}

// Registration is the POST /users response: the user plus whether the phone was already known.
type Registration struct {
	User
	IsExisting bool `json:"isExisting"`
}

type MenuItem struct {
	ItemID      string  `json:"itemId"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	IsAvailable *bool   `json:"isAvailable,omitempty"`
	FlashDeal   bool    `json:"flashDeal,omitempty"`
}

// Available reports false only when the backend explicitly marked the item unavailable.
func (m MenuItem) Available() bool {
	return m.IsAvailable == nil || *m.IsAvailable
}

type MatchingItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Vendor struct {
	VendorID       string         `json:"vendorId"`
	Name           string         `json:"name"`
	Phone          string         `json:"phone,omitempty"`
	DistanceMeters *float64       `json:"distance_m,omitempty"`
	BusinessHours  string         `json:"businessHours,omitempty"`
	Location       *Location      `json:"location,omitempty"`
	Menu           []MenuItem     `json:"menu,omitempty"`
	MatchingItems  []MatchingItem `json:"matchingItems,omitempty"`
}

type Deal struct {
	DealID         string    `json:"dealId"`
	VendorID       string    `json:"vendorId"`
	VendorName     string    `json:"vendorName"`
	ItemName       string    `json:"itemName"`
	DealPrice      float64   `json:"dealPrice"`
	OriginalPrice  *float64  `json:"originalPrice,omitempty"`
	ExpiresAt      Timestamp `json:"expiresAt"`
	DistanceMeters *float64  `json:"distance_m,omitempty"`
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
)

// Next returns the status a vendor may move an order to. Only pending->preparing and
// preparing->ready are client-initiated.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusPending:
		return StatusPreparing, true
	case StatusPreparing:
		return StatusReady, true
	default:
		return "", false
	}
}

type OrderItem struct {
	ItemID   string   `json:"itemId"`
	Name     string   `json:"name,omitempty"`
	Quantity int      `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
}

type Order struct {
	OrderID       string      `json:"orderId"`
	VendorID      string      `json:"vendorId"`
	VendorName    string      `json:"vendorName,omitempty"`
	CustomerPhone string      `json:"customerPhone,omitempty"`
	Status        OrderStatus `json:"status"`
	Items         []OrderItem `json:"items"`
	Total         *float64    `json:"total,omitempty"`
	PickupCode    string      `json:"pickupCode,omitempty"`
	CreatedAt     *Timestamp  `json:"createdAt,omitempty"`
}

type VoiceResponse struct {
	Intent  string   `json:"intent"`
	Message string   `json:"message"`
	Results []Vendor `json:"results,omitempty"`
	Deals   []Deal   `json:"deals,omitempty"`
}
