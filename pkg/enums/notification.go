package enums

import "fmt"

// NotificationEvent names the events fanned out to tenant subscribers.
type NotificationEvent string

const (
	NotificationEventSaleCreated      NotificationEvent = "sale-created"
	NotificationEventSaleReturned     NotificationEvent = "sale-returned"
	NotificationEventInventoryUpdated NotificationEvent = "inventory-updated"
	NotificationEventPurchaseCreated  NotificationEvent = "purchase-created"
	NotificationEventPurchaseReceived NotificationEvent = "purchase-received"
)

var validNotificationEvents = []NotificationEvent{
	NotificationEventSaleCreated,
	NotificationEventSaleReturned,
	NotificationEventInventoryUpdated,
	NotificationEventPurchaseCreated,
	NotificationEventPurchaseReceived,
}

// String implements fmt.Stringer.
func (n NotificationEvent) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationEvent.
func (n NotificationEvent) IsValid() bool {
	for _, candidate := range validNotificationEvents {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationEvent converts raw input into a NotificationEvent.
func ParseNotificationEvent(value string) (NotificationEvent, error) {
	for _, candidate := range validNotificationEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification event %q", value)
}
