package enums

import "fmt"

// SubscriptionPlan names the plan a tenant is on.
type SubscriptionPlan string

const (
	SubscriptionPlanBasic    SubscriptionPlan = "basic"
	SubscriptionPlanStandard SubscriptionPlan = "standard"
	SubscriptionPlanPremium  SubscriptionPlan = "premium"
)

var validSubscriptionPlans = []SubscriptionPlan{
	SubscriptionPlanBasic,
	SubscriptionPlanStandard,
	SubscriptionPlanPremium,
}

// String implements fmt.Stringer.
func (s SubscriptionPlan) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubscriptionPlan.
func (s SubscriptionPlan) IsValid() bool {
	for _, candidate := range validSubscriptionPlans {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionPlan converts raw input into a SubscriptionPlan.
func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	for _, candidate := range validSubscriptionPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription plan %q", value)
}
