package enums

import "fmt"

// PurchaseStatus is the purchase order state machine.
type PurchaseStatus string

const (
	PurchaseStatusOrdered   PurchaseStatus = "ORDERED"
	PurchaseStatusReceived  PurchaseStatus = "RECEIVED"
	PurchaseStatusCompleted PurchaseStatus = "COMPLETED"
	PurchaseStatusCancelled PurchaseStatus = "CANCELLED"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusOrdered,
	PurchaseStatusReceived,
	PurchaseStatusCompleted,
	PurchaseStatusCancelled,
}

// String implements fmt.Stringer.
func (p PurchaseStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PurchaseStatus.
func (p PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}
