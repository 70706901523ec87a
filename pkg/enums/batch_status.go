package enums

import "fmt"

// BatchStatus is derived from quantity and expiry; never set directly.
type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "active"
	BatchStatusNearExpiry BatchStatus = "near_expiry"
	BatchStatusExpired    BatchStatus = "expired"
	BatchStatusOutOfStock BatchStatus = "out_of_stock"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusActive,
	BatchStatusNearExpiry,
	BatchStatusExpired,
	BatchStatusOutOfStock,
}

// String implements fmt.Stringer.
func (b BatchStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BatchStatus.
func (b BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBatchStatus converts raw input into a BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
