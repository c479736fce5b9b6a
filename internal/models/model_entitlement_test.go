package models

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/castaway-live/castaway/pkg/types"
)

func TestEntitlementValid(t *testing.T) {
	now := time.Now()

	require.False(t, (*Entitlement)(nil).Valid())

	e := &Entitlement{
		UserID:    "u1",
		IsActive:  true,
		Tier:      types.PremiumTierMonthly,
		ExpiresAt: lo.ToPtr(now.Add(24 * time.Hour)),
	}
	require.True(t, e.Valid())

	// The cached flag alone is not enough once the expiry has passed.
	e.ExpiresAt = lo.ToPtr(now.Add(-time.Minute))
	require.False(t, e.Valid())

	e.ExpiresAt = nil
	require.False(t, e.Valid())

	e.ExpiresAt = lo.ToPtr(now.Add(time.Hour))
	e.IsActive = false
	require.False(t, e.Valid())
}
