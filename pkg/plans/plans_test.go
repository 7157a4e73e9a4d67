package plans_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

func TestLimitsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		plan      plans.Plan
		limit     int64
		unlimited bool
		feature   plans.Feature
		has       bool
	}{
		{name: "free allows three invoices", plan: plans.Free, limit: 3, feature: plans.FeatureUnlimitedInvoices, has: false},
		{name: "starter is unbounded", plan: plans.Starter, limit: plans.Unlimited, unlimited: true, feature: plans.FeatureCustomBranding, has: true},
		{name: "pro is unbounded with reminders", plan: plans.Pro, limit: plans.Unlimited, unlimited: true, feature: plans.FeaturePaymentReminders, has: true},
		{name: "agency is unbounded with team members", plan: plans.Agency, limit: plans.Unlimited, unlimited: true, feature: plans.FeatureTeamMembers, has: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := plans.LimitsFor(tt.plan)
			require.NoError(t, err)
			assert.Equal(t, tt.plan, l.Plan)
			assert.Equal(t, tt.limit, l.InvoiceLimit)
			assert.Equal(t, tt.unlimited, l.IsUnlimited())
			assert.Equal(t, tt.has, l.HasFeature(tt.feature))
		})
	}

	t.Run("unknown plan is an error, not a free fallback", func(t *testing.T) {
		t.Parallel()

		_, err := plans.LimitsFor(plans.Plan("enterprise"))
		assert.ErrorIs(t, err, plans.ErrUnknownPlan)
	})

	t.Run("is pure", func(t *testing.T) {
		t.Parallel()

		a, _ := plans.LimitsFor(plans.Pro)
		a.Features[0] = "mutated"
		b, _ := plans.LimitsFor(plans.Pro)
		assert.Equal(t, plans.FeatureUnlimitedInvoices, b.Features[0])
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	p, err := plans.Parse(" Agency ")
	require.NoError(t, err)
	assert.Equal(t, plans.Agency, p)

	_, err = plans.Parse("gold")
	assert.ErrorIs(t, err, plans.ErrUnknownPlan)

	_, err = plans.Parse("")
	assert.ErrorIs(t, err, plans.ErrUnknownPlan)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, plans.Validate())
	for _, p := range plans.All() {
		assert.NotPanics(t, func() { plans.MustLimitsFor(p) })
	}
}
