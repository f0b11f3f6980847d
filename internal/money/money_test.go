package money

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"endless-wallet/lending-backend/pkg/apperr"
)

func TestAmortizedPayment(t *testing.T) {
	payment, err := AmortizedPayment(5000, 7.5, 12)
	require.NoError(t, err)
	assert.InDelta(t, 433.80, payment, 0.02)

	interest, err := TotalInterest(5000, 7.5, 12)
	require.NoError(t, err)
	assert.InDelta(t, 205.60, interest, 0.25)
}

func TestAmortizedPaymentZeroAPR(t *testing.T) {
	payment, err := AmortizedPayment(1200, 0, 12)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, payment, 1e-9)

	interest, err := TotalInterest(1200, 0, 12)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, interest, 1e-9)
}

func TestAmortizedPaymentInvalidTerms(t *testing.T) {
	cases := []struct {
		name      string
		principal float64
		apr       float64
		term      int
	}{
		{"zero term", 5000, 7.5, 0},
		{"negative term", 5000, 7.5, -3},
		{"negative apr", 5000, -1, 12},
		{"zero principal", 0, 7.5, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AmortizedPayment(tc.principal, tc.apr, tc.term)
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTerms))
		})
	}
}

func TestInterestNeverNegative(t *testing.T) {
	principals := []float64{100, 2500, 5000, 13400, 95000}
	aprs := []float64{0, 0.5, 6, 7.5, 24}
	terms := []int{1, 6, 12, 36, 60}

	for _, p := range principals {
		for _, apr := range aprs {
			for _, term := range terms {
				payment, err := AmortizedPayment(p, apr, term)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, payment*float64(term), p-1e-6,
					"principal=%.2f apr=%.2f term=%d", p, apr, term)
			}
		}
	}
}

func TestYieldToMaturity(t *testing.T) {
	ytm, err := YieldToMaturity(2800, 2650, 7)
	require.NoError(t, err)
	assert.InDelta(t, 9.70, ytm, 0.01)

	_, err = YieldToMaturity(2800, 0, 7)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTerms))

	_, err = YieldToMaturity(2800, 2650, 0)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTerms))
}

func TestDiscountPercentage(t *testing.T) {
	assert.InDelta(t, 5.36, DiscountPercentage(2800, 2650), 0.01)

	// Premium pricing is legal and comes back negative.
	assert.Less(t, DiscountPercentage(9000, 9200), 0.0)

	// Degenerate balances report no discount.
	assert.Equal(t, 0.0, DiscountPercentage(0, 100))
	assert.Equal(t, 0.0, DiscountPercentage(-50, 100))
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(30), Cents(0.1+0.1+0.1))
	assert.Equal(t, int64(30), Cents(0.30))
	assert.Equal(t, int64(300000), Cents(3000))

	// Rounded amounts and their cent representation agree.
	assert.Equal(t, Cents(RoundCents(2999.996)), Cents(3000.00))
}

func TestBuildScheduleMonthly(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	installments, err := BuildSchedule(5000, 7.5, 12, ScheduleMonthly, start)
	require.NoError(t, err)
	require.Len(t, installments, 12)

	assert.Equal(t, 1, installments[0].Sequence)
	assert.Equal(t, start.AddDate(0, 1, 0), installments[0].DueDate)
	assert.Equal(t, start.AddDate(0, 12, 0), installments[11].DueDate)
	for _, inst := range installments {
		assert.InDelta(t, 433.80, inst.Amount, 0.02)
	}
	assert.InDelta(t, 5205.60, ScheduleTotal(installments), 0.30)
}

func TestBuildScheduleQuarterly(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	installments, err := BuildSchedule(6000, 8, 12, ScheduleQuarterly, start)
	require.NoError(t, err)
	require.Len(t, installments, 4)
	assert.Equal(t, start.AddDate(0, 3, 0), installments[0].DueDate)
	assert.Equal(t, start.AddDate(0, 12, 0), installments[3].DueDate)
	assert.Greater(t, ScheduleTotal(installments), 6000.0)

	_, err = BuildSchedule(6000, 8, 10, ScheduleQuarterly, start)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTerms))
}

func TestBuildScheduleBalloon(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	installments, err := BuildSchedule(10000, 6, 6, ScheduleBalloon, start)
	require.NoError(t, err)
	require.Len(t, installments, 6)

	// Interest-only until the final payment carries the principal.
	for _, inst := range installments[:5] {
		assert.InDelta(t, 50.0, inst.Amount, 0.01)
	}
	assert.InDelta(t, 10050.0, installments[5].Amount, 0.01)
}

func TestBuildScheduleMatchesPreview(t *testing.T) {
	// Schedule generation must agree with the preview math exactly.
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	payment, err := AmortizedPayment(3000, 6, 6)
	require.NoError(t, err)

	installments, err := BuildSchedule(3000, 6, 6, ScheduleMonthly, start)
	require.NoError(t, err)
	for _, inst := range installments {
		assert.Equal(t, RoundCents(payment), inst.Amount)
	}
}
