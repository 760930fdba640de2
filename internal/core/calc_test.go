package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectbooks/internal/core"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeLines_Totals(t *testing.T) {
	lines := []core.LineInput{
		{Description: "Design hours", Quantity: d("2"), Unit: "hour", UnitPrice: d("10"), TaxPercent: d("10")},
		{Description: "Stock photo", Quantity: d("1"), Unit: "unit", UnitPrice: d("5")},
	}

	amounts, totals, err := core.ComputeLines(lines)
	require.NoError(t, err)
	require.Len(t, amounts, 2)

	assert.True(t, amounts[0].LineTotal.Equal(d("20")), "line 1 total = %s", amounts[0].LineTotal)
	assert.True(t, amounts[0].TaxAmount.Equal(d("2")), "line 1 tax = %s", amounts[0].TaxAmount)
	assert.True(t, amounts[0].LineGrandTotal.Equal(d("22")), "line 1 grand total = %s", amounts[0].LineGrandTotal)

	assert.True(t, amounts[1].LineTotal.Equal(d("5")))
	assert.True(t, amounts[1].TaxAmount.IsZero())
	assert.True(t, amounts[1].LineGrandTotal.Equal(d("5")))

	assert.True(t, totals.Subtotal.Equal(d("25")), "subtotal = %s", totals.Subtotal)
	assert.True(t, totals.TotalTax.Equal(d("2")), "total tax = %s", totals.TotalTax)
	assert.True(t, totals.GrandTotal.Equal(d("27")), "grand total = %s", totals.GrandTotal)
}

func TestComputeLines_FractionalQuantities(t *testing.T) {
	lines := []core.LineInput{
		{Description: "Consulting", Quantity: d("2.5"), Unit: "hour", UnitPrice: d("99.99"), TaxPercent: d("7.5")},
	}

	amounts, totals, err := core.ComputeLines(lines)
	require.NoError(t, err)

	assert.True(t, amounts[0].LineTotal.Equal(d("249.975")))
	assert.True(t, amounts[0].TaxAmount.Equal(d("18.748125")))
	assert.True(t, totals.GrandTotal.Equal(d("268.723125")))
}

func TestComputeLines_Deterministic(t *testing.T) {
	lines := []core.LineInput{
		{Description: "Licensing", Quantity: d("3"), Unit: "seat", UnitPrice: d("33.33"), TaxPercent: d("19")},
		{Description: "Support", Quantity: d("1"), Unit: "month", UnitPrice: d("120"), TaxPercent: d("19")},
	}

	_, first, err := core.ComputeLines(lines)
	require.NoError(t, err)
	_, second, err := core.ComputeLines(lines)
	require.NoError(t, err)

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.TotalTax.Equal(second.TotalTax))
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
}

func TestComputeLines_Validation(t *testing.T) {
	tests := []struct {
		name  string
		lines []core.LineInput
	}{
		{name: "no lines", lines: nil},
		{
			name:  "zero quantity",
			lines: []core.LineInput{{Quantity: d("0"), UnitPrice: d("10")}},
		},
		{
			name:  "negative quantity",
			lines: []core.LineInput{{Quantity: d("-1"), UnitPrice: d("10")}},
		},
		{
			name:  "zero unit price",
			lines: []core.LineInput{{Quantity: d("1"), UnitPrice: d("0")}},
		},
		{
			name:  "negative tax percent",
			lines: []core.LineInput{{Quantity: d("1"), UnitPrice: d("10"), TaxPercent: d("-5")}},
		},
		{
			name: "second line invalid",
			lines: []core.LineInput{
				{Quantity: d("1"), UnitPrice: d("10")},
				{Quantity: d("1"), UnitPrice: d("-10")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := core.ComputeLines(tt.lines)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), "expected a validation error, got %v", err)
		})
	}
}
