// Package rfq covers the request-for-quotation lifecycle: dispatching an RFQ
// to a resolved vendor set, collecting vendor quotations, and scoring them.
package rfq

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of an RFQ.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusAwarded Status = "awarded"
)

// Active reports whether the RFQ still blocks dispatching another one for the
// same requisition.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusAwarded
}

// QuotationStatus of a vendor bid.
type QuotationStatus string

const (
	QuotationPending  QuotationStatus = "pending"
	QuotationApproved QuotationStatus = "approved"
	QuotationRejected QuotationStatus = "rejected"
	QuotationClosed   QuotationStatus = "closed"
)

// RFQ invites a set of vendors to bid on one requisition. Title and estimated
// cost are denormalized from the requisition for display.
type RFQ struct {
	ID               int64           `json:"id"`
	MRFID            int64           `json:"mrf_id"`
	MRFControlNumber string          `json:"mrf_control_number"`
	MRFTitle         string          `json:"mrf_title"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
	Description      string          `json:"description"`
	Quantity         int             `json:"quantity"`
	Deadline         time.Time       `json:"deadline"`
	VendorIDs        []int64         `json:"vendor_ids"`
	Status           Status          `json:"status"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LineItem is one priced row of a quotation.
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Quotation is one vendor's bid against an RFQ.
type Quotation struct {
	ID             int64           `json:"id"`
	RFQID          int64           `json:"rfq_id"`
	VendorID       int64           `json:"vendor_id"`
	VendorName     string          `json:"vendor_name"`
	Price          decimal.Decimal `json:"price"`
	DeliveryDate   time.Time       `json:"delivery_date"`
	PaymentTerms   string          `json:"payment_terms,omitempty"`
	ValidityDays   int             `json:"validity_days,omitempty"`
	WarrantyMonths int             `json:"warranty_months,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Items          []LineItem      `json:"items,omitempty"`
	Status         QuotationStatus `json:"status"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Open reports whether the quotation still counts against the one-open-bid
// rule for its vendor.
func (q *Quotation) Open() bool {
	return q.Status == QuotationPending
}
