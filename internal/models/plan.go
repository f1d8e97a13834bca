package models

// Subscription tiers. TierFree carries no processing entitlements.
const (
	TierFree         = "free"
	TierEssential    = "essential"
	TierProfessional = "professional"
)

// Subscription statuses as resolved by the billing collaborator.
const (
	PlanStatusActive   = "active"
	PlanStatusPastDue  = "past_due"
	PlanStatusCanceled = "canceled"
)

// Plan is the resolved entitlement state for a user. The upstream
// payment-processor sync that produces it lives outside this service.
type Plan struct {
	Tier   string `json:"tier"`
	Status string `json:"status"`
	Comped bool   `json:"comped"`
}

// Active reports whether the plan currently grants its tier's entitlements.
func (p Plan) Active() bool {
	return p.Status == PlanStatusActive
}
