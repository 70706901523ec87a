package purchases

import "github.com/rxledger/pharmacy-backend/pkg/enums"

// DueFor is the unpaid balance of an order.
func DueFor(grandTotalCents, amountPaidCents int64) int64 {
	return max(grandTotalCents-amountPaidCents, 0)
}

// PaymentStatusFor derives the payment status. A cancelled order is always pending.
func PaymentStatusFor(status enums.PurchaseStatus, grandTotalCents, amountPaidCents int64) enums.PaymentStatus {
	switch {
	case status == enums.PurchaseStatusCancelled:
		return enums.PaymentStatusPending
	case amountPaidCents >= grandTotalCents:
		return enums.PaymentStatusPaid
	case amountPaidCents > 0:
		return enums.PaymentStatusPartial
	default:
		return enums.PaymentStatusPending
	}
}

// settledStatus is where a received order lands given its remaining due.
func settledStatus(dueCents int64) enums.PurchaseStatus {
	if dueCents > 0 {
		return enums.PurchaseStatusReceived
	}
	return enums.PurchaseStatusCompleted
}
