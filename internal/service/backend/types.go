package backend

import (
	"errors"
	"fmt"
	"net/http"

	"infrastreet/marketplace/internal/model"
)

type RegisterUserRequest struct {
	Phone string     `json:"phone"`
	Role  model.Role `json:"role"`
	Name  string     `json:"name,omitempty"`
}

type CreateVendorRequest struct {
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	BusinessHours string  `json:"businessHours,omitempty"`
}

type AddMenuItemRequest struct {
	ItemName    string  `json:"itemName"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type OrderLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	VendorID      string          `json:"vendorId"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	Items         []OrderLine     `json:"items"`
	Location      *model.Location `json:"location,omitempty"`

	// IdempotencyKey is sent as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

type CreateDealRequest struct {
	VendorID      string   `json:"vendorId"`
	ItemName      string   `json:"itemName"`
	DealPrice     float64  `json:"dealPrice"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	ExpiresAt     string   `json:"expiresAt"`
}

type VoiceRequest struct {
	Transcript string  `json:"transcript"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

type SearchResult struct {
	Results []model.Vendor `json:"results"`
	Message string         `json:"message,omitempty"`
}

type MenuUploadResult struct {
	ItemsExtracted int              `json:"itemsExtracted"`
	Items          []model.MenuItem `json:"items,omitempty"`
}

type APIError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ErrorResponse is returned for every non-2xx backend answer.
type ErrorResponse struct {
	StatusCode int        `json:"-"`
	Detail     string     `json:"detail,omitempty"`
	Errors     []APIError `json:"errors,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend api error: status %d: %s", e.StatusCode, e.Detail)
	}
	if len(e.Errors) > 0 {
		return fmt.Sprintf("backend api error: status %d: %v", e.StatusCode, e.Errors)
	}
	return fmt.Sprintf("backend api error: status %d", e.StatusCode)
}

func IsNotFound(err error) bool {
	var apiErr *ErrorResponse
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
