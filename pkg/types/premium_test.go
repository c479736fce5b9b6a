package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPremiumTier_Valid(t *testing.T) {
	require.True(t, PremiumTierMonthly.Valid())
	require.True(t, PremiumTierYearly.Valid())
	require.False(t, PremiumTier("weekly").Valid())
	require.False(t, PremiumTier("").Valid())
}

func TestPremiumPlan_AmountFormats(t *testing.T) {
	monthly := &PremiumPlan{Tier: PremiumTierMonthly, AmountCents: 499, Currency: "USD", DurationDays: 30}
	require.Equal(t, "4.99", monthly.AmountValue())
	require.Equal(t, 30*24*time.Hour, monthly.Duration())

	yearly := &PremiumPlan{Tier: PremiumTierYearly, AmountCents: 3999, Currency: "USD", DurationDays: 365}
	require.Equal(t, "39.99", yearly.AmountValue())

	// Whole-dollar prices keep their trailing zeros on the wire.
	flat := &PremiumPlan{AmountCents: 500}
	require.Equal(t, "5.00", flat.AmountValue())
	require.True(t, flat.AmountDecimal().Equal(flat.AmountDecimal().Truncate(2)))
}
