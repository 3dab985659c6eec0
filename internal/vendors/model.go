package vendors

import "time"

// Vendor represents a registered supplier. The workflow engine reads vendors
// only; registration and KYC verification happen in an external back office.
type Vendor struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Rating          float64   `json:"rating"`
	CompletedOrders int       `json:"completed_orders"`
	Active          bool      `json:"active"`
	KYCVerified     bool      `json:"kyc_verified"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListFilters narrows vendor listings.
type ListFilters struct {
	Category string
	Search   string
	Active   *bool
	SortBy   string
	SortDir  string
	Limit    int
	Offset   int
}
