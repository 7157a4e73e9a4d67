// Package plans maps subscription plans to their entitlements.
//
// The mapping is a closed enumeration with an exhaustive switch rather than a
// lookup map: a plan added to All without a matching case in LimitsFor fails
// Validate at startup instead of silently receiving free-tier limits.
package plans

import (
	"fmt"
	"slices"
	"strings"
)

// Plan identifies a subscription plan.
type Plan string

const (
	Free    Plan = "free"
	Starter Plan = "starter"
	Pro     Plan = "pro"
	Agency  Plan = "agency"
)

// Unlimited marks an invoice limit with no cap. -1 keeps it storable in SQL.
const Unlimited int64 = -1

// FreeInvoicesPerMonth is the monthly invoice allowance of the free plan.
const FreeInvoicesPerMonth int64 = 3

// Feature is a capability flag enabled by a plan.
type Feature string

const (
	FeatureUnlimitedInvoices Feature = "unlimited_invoices"
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureMilestonePayments Feature = "milestone_payments"
	FeaturePaymentReminders  Feature = "payment_reminders"
	FeatureTeamMembers       Feature = "team_members"
	FeaturePrioritySupport   Feature = "priority_support"
)

// Limits are the entitlements of a plan.
type Limits struct {
	Plan         Plan      `json:"plan"`
	InvoiceLimit int64     `json:"invoice_limit"` // Unlimited (-1) for no cap
	Features     []Feature `json:"features"`
}

// IsUnlimited reports whether the invoice limit is unbounded.
func (l Limits) IsUnlimited() bool {
	return l.InvoiceLimit == Unlimited
}

// HasFeature reports whether the plan enables f.
func (l Limits) HasFeature(f Feature) bool {
	return slices.Contains(l.Features, f)
}

// All returns every known plan, cheapest first.
func All() []Plan {
	return []Plan{Free, Starter, Pro, Agency}
}

// Parse converts a stored plan name into a Plan.
func Parse(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(All(), p) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}

func (p Plan) String() string { return string(p) }

// LimitsFor returns the entitlements of plan. It has no side effects.
func LimitsFor(plan Plan) (Limits, error) {
	switch plan {
	case Free:
		return Limits{
			Plan:         Free,
			InvoiceLimit: FreeInvoicesPerMonth,
			Features:     []Feature{},
		}, nil
	case Starter:
		return Limits{
			Plan:         Starter,
			InvoiceLimit: Unlimited,
			Features: []Feature{
				FeatureUnlimitedInvoices,
				FeatureCustomBranding,
			},
		}, nil
	case Pro:
		return Limits{
			Plan:         Pro,
			InvoiceLimit: Unlimited,
			Features: []Feature{
				FeatureUnlimitedInvoices,
				FeatureCustomBranding,
				FeatureMilestonePayments,
				FeaturePaymentReminders,
			},
		}, nil
	case Agency:
		return Limits{
			Plan:         Agency,
			InvoiceLimit: Unlimited,
			Features: []Feature{
				FeatureUnlimitedInvoices,
				FeatureCustomBranding,
				FeatureMilestonePayments,
				FeaturePaymentReminders,
				FeatureTeamMembers,
				FeaturePrioritySupport,
			},
		}, nil
	}
	return Limits{}, fmt.Errorf("%w: %q", ErrUnknownPlan, string(plan))
}

// MustLimitsFor is LimitsFor for plans already known to be valid.
func MustLimitsFor(plan Plan) Limits {
	l, err := LimitsFor(plan)
	if err != nil {
		panic(err)
	}
	return l
}

// Validate checks that every plan in All has an entry in the entitlement
// table. Call it once at startup.
func Validate() error {
	for _, p := range All() {
		l, err := LimitsFor(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIncompletePlanTable, err)
		}
		if l.Plan != p {
			return fmt.Errorf("%w: plan %q resolves to %q", ErrIncompletePlanTable, p, l.Plan)
		}
		if l.InvoiceLimit < Unlimited {
			return fmt.Errorf("%w: plan %q has negative invoice limit", ErrIncompletePlanTable, p)
		}
	}
	return nil
}
