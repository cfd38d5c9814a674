package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// FreeWordsLimit is the monthly word budget for users without a paid plan.
const FreeWordsLimit = 500

// Entitlement describes what a paid plan grants.
type Entitlement struct {
	WordsLimit  int
	DisplayName string
}

// catalog maps provider plan IDs to entitlements. Plan IDs are the wire
// contract with the payment provider and must stay lowercase. Adding a plan
// here is enough; the reconciler never switches on concrete plan names.
var catalog = map[Plan]Entitlement{
	PlanBasic:      {WordsLimit: 10000, DisplayName: "Basic"},
	PlanPro:        {WordsLimit: 100000, DisplayName: "Pro"},
	PlanEnterprise: {WordsLimit: 500000, DisplayName: "Enterprise"},
}

// Lookup resolves a provider plan ID to its entitlement. The second return
// is false for unknown plans; callers on an activation path must treat that
// as fatal rather than fall back to a default entitlement.
func Lookup(planID string) (Entitlement, bool) {
	ent, ok := catalog[Plan(strings.TrimSpace(planID))]
	return ent, ok
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanBasic:
		return PlanBasic
	case PlanPro:
		return PlanPro
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// PlanRank orders plans for comparisons (upgrade/downgrade decisions in
// admin tooling); higher is better.
func PlanRank(plan Plan) int {
	switch plan {
	case PlanEnterprise:
		return 3
	case PlanPro:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}
