package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDiscountTiers(t *testing.T) {
	cases := []struct {
		quantity int
		want     string
	}{
		{1, "0"},
		{3, "0"},
		{4, "0.1"},
		{9, "0.1"},
		{10, "0.2"},
		{20, "0.2"},
	}
	for _, tc := range cases {
		rate, err := CalculateDiscount(tc.quantity)
		require.NoError(t, err, "quantity %d", tc.quantity)
		assert.Equal(t, tc.want, rate.String(), "quantity %d", tc.quantity)
	}
}

func TestCalculateDiscountAboveLimit(t *testing.T) {
	_, err := CalculateDiscount(21)
	require.ErrorIs(t, err, ErrQuantityLimitExceeded)
	assert.True(t, IsDomainError(err, ErrCodePolicyViolation))
}

func TestAllowsQuantity(t *testing.T) {
	assert.True(t, AllowsQuantity(0))
	assert.True(t, AllowsQuantity(20))
	assert.False(t, AllowsQuantity(21))
}
