package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := map[string]int64{
		"150.00": 15000,
		"150":    15000,
		"0.5":    50,
		"0":      0,
		" 42.1 ": 4210,
	}
	for raw, want := range tests {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "-1.00", "1.001", "abc", "1,50"} {
		_, err := ParseAmount(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestParseOptionalAmount(t *testing.T) {
	got, err := ParseOptionalAmount("")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = ParseOptionalAmount("-3")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "150.00", FormatMinor(15000))
	assert.Equal(t, "0.05", FormatMinor(5))
	assert.Equal(t, "5000.00", FormatMinor(500000))
}

func TestAmountsValidate(t *testing.T) {
	ok := Amounts{Total: 15000, ServiceFee: 1500, InsuranceFee: 500, CouponDiscount: 1000}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, int64(12000), ok.Net())

	assert.ErrorIs(t, Amounts{Total: 1000, ServiceFee: 1000}.Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, Amounts{Total: 1000, CouponDiscount: -1}.Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, Amounts{}.Validate(), ErrInvalidAmount)
}
