package enums

import "testing"

func TestParseRoundTrips(t *testing.T) {
	if got, err := ParseBatchStatus("near_expiry"); err != nil || got != BatchStatusNearExpiry {
		t.Fatalf("unexpected batch status %q err=%v", got, err)
	}
	if got, err := ParsePurchaseStatus("RECEIVED"); err != nil || got != PurchaseStatusReceived {
		t.Fatalf("unexpected purchase status %q err=%v", got, err)
	}
	if got, err := ParsePaymentMethod("credit"); err != nil || got != PaymentMethodCredit {
		t.Fatalf("unexpected payment method %q err=%v", got, err)
	}
	if got, err := ParseNotificationEvent("sale-returned"); err != nil || got != NotificationEventSaleReturned {
		t.Fatalf("unexpected event %q err=%v", got, err)
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParsePurchaseStatus("ordered"); err == nil {
		t.Fatal("purchase status parsing is case sensitive")
	}
	if _, err := ParseSaleStatus("refunded"); err == nil {
		t.Fatal("expected unknown sale status to fail")
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatal("settled is not a purchase payment status")
	}
}
