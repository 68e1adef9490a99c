package domain

import "time"

// PurchaseStatus is the terminal state of a purchase attempt.
type PurchaseStatus string

const (
	PurchaseFilled   PurchaseStatus = "filled"
	PurchaseRejected PurchaseStatus = "rejected"
)

// Purchase is the audit record of one purchase attempt, successful or not.
type Purchase struct {
	ID          string // UUID
	Account     string // account display name at time of purchase
	ListingID   string
	ItemName    string
	Price       float64 // observed unit price paid (or offered)
	RefPrice    float64 // reference unit price at decision time
	MarginRatio float64
	Status      PurchaseStatus
	Reason      string // upstream rejection reason, empty on fill
	CreatedAt   time.Time
}

// PurchaseResult is the outcome of a purchase submission as reported by the
// marketplace API.
type PurchaseResult struct {
	OrderID string
	Success bool
	Reason  string // upstream error message when Success is false
}
