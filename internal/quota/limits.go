package quota

import "github.com/caseflow/backend/internal/models"

// Limits is a tier's allowance for one usage type over the rolling day and
// month windows.
type Limits struct {
	Daily   int64
	Monthly int64
}

var planLimits = map[string]map[string]Limits{
	models.TierEssential: {
		models.UsageOCRPage:     {Daily: 50, Monthly: 500},
		models.UsageAICall:      {Daily: 25, Monthly: 250},
		models.UsageUploadBytes: {Daily: 256 << 20, Monthly: 2 << 30},
	},
	models.TierProfessional: {
		models.UsageOCRPage:     {Daily: 200, Monthly: 2000},
		models.UsageAICall:      {Daily: 100, Monthly: 1000},
		models.UsageUploadBytes: {Daily: 1 << 30, Monthly: 10 << 30},
	},
}

// tierLimits returns the allowance for a plan and usage type. The free tier
// and inactive subscriptions carry no entitlements.
func tierLimits(plan models.Plan, eventType string) (Limits, bool) {
	if !plan.Active() {
		return Limits{}, false
	}
	byType, ok := planLimits[plan.Tier]
	if !ok {
		return Limits{}, false
	}
	limits, ok := byType[eventType]
	return limits, ok
}
