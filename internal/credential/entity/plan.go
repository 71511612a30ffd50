package entity

// SubscriptionPlan is a user's billing tier. The numeric value doubles as the
// plan charge in account-balance units, which is why the constants are not
// sequential.
type SubscriptionPlan int

const (
	// PlanFree is the unpaid tier.
	PlanFree SubscriptionPlan = 0
	// PlanOneDay is a single-day paid pass.
	PlanOneDay SubscriptionPlan = 130
	// PlanOneWeek is a one-week paid pass.
	PlanOneWeek SubscriptionPlan = 600
	// PlanOneMonth is a one-month paid pass.
	PlanOneMonth SubscriptionPlan = 2000
	// PlanSixMonths is a six-month paid pass.
	PlanSixMonths SubscriptionPlan = 11000
	// PlanOneYear is a one-year paid pass.
	PlanOneYear SubscriptionPlan = 22000
)

// String returns the plan name.
func (p SubscriptionPlan) String() string {
	switch p {
	case PlanOneDay:
		return "one_day"
	case PlanOneWeek:
		return "one_week"
	case PlanOneMonth:
		return "one_month"
	case PlanSixMonths:
		return "six_months"
	case PlanOneYear:
		return "one_year"
	case PlanFree:
		return "free"
	default:
		return "free"
	}
}

// Charge returns the plan cost in balance units.
func (p SubscriptionPlan) Charge() float64 {
	return float64(p)
}

// Paid reports whether the plan is a paying tier.
func (p SubscriptionPlan) Paid() bool {
	return p > PlanFree
}

// PlanFromValue maps a stored numeric value onto a known plan, defaulting to
// free for unknown values.
func PlanFromValue(v int) SubscriptionPlan {
	switch SubscriptionPlan(v) {
	case PlanOneDay, PlanOneWeek, PlanOneMonth, PlanSixMonths, PlanOneYear:
		return SubscriptionPlan(v)
	default:
		return PlanFree
	}
}
