package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	v, err := ToMinorUnits(decimal.RequireFromString("15.50"), "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1550), v)

	v, err = ToMinorUnits(decimal.RequireFromString("1500"), "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), v)

	v, err = ToMinorUnits(decimal.RequireFromString("3.141"), "KWD")
	require.NoError(t, err)
	assert.Equal(t, int64(3141), v)
}

func TestToMinorUnitsRejectsExcessPrecision(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("15.505"), "USD")
	assert.Error(t, err)

	_, err = ToMinorUnits(decimal.RequireFromString("100.5"), "JPY")
	assert.Error(t, err)
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, "15.5", FromMinorUnits(1550, "USD").String())
	assert.Equal(t, "1500", FromMinorUnits(1500, "JPY").String())
}
