package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castaway-live/castaway/pkg/types"
)

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	require.Equal(t, 5, c.RateLimit.CreateOrderMax)
	require.Equal(t, 3600, c.RateLimit.CreateOrderWindowSeconds)
	require.Equal(t, 15, c.PayPal.TimeoutSeconds)
	require.NotEmpty(t, c.PremiumPlans)
}

func TestGetPlanByTier(t *testing.T) {
	c := &Config{PremiumPlans: defaultPremiumPlans()}

	monthly := c.GetPlanByTier(types.PremiumTierMonthly)
	require.NotNil(t, monthly)
	require.Equal(t, int64(499), monthly.AmountCents)
	require.Equal(t, "USD", monthly.Currency)
	require.Equal(t, 30, monthly.DurationDays)

	yearly := c.GetPlanByTier(types.PremiumTierYearly)
	require.NotNil(t, yearly)
	require.Equal(t, int64(3999), yearly.AmountCents)
	require.Equal(t, 365, yearly.DurationDays)

	require.Nil(t, c.GetPlanByTier(types.PremiumTier("weekly")))
}
