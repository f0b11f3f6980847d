package money

import (
	"math"

	"endless-wallet/lending-backend/pkg/apperr"
)

// All functions in this package are pure and deterministic. Petition
// previews and post-conversion schedule generation both go through them,
// so the two must agree bit-for-bit.

// AmortizedPayment returns the fixed periodic payment for a loan using the
// standard annuity formula. A zero APR degrades to straight-line repayment.
func AmortizedPayment(principal, apr float64, termMonths int) (float64, error) {
	if termMonths <= 0 {
		return 0, apperr.InvalidTerms("term must be positive, got %d months", termMonths)
	}
	if apr < 0 {
		return 0, apperr.InvalidTerms("apr must not be negative, got %.4f", apr)
	}
	if principal <= 0 {
		return 0, apperr.InvalidTerms("principal must be positive, got %.2f", principal)
	}

	if apr == 0 {
		return principal / float64(termMonths), nil
	}

	monthlyRate := apr / 100 / 12
	factor := math.Pow(1+monthlyRate, float64(termMonths))
	return principal * monthlyRate * factor / (factor - 1), nil
}

// TotalInterest returns the interest paid over the full term.
func TotalInterest(principal, apr float64, termMonths int) (float64, error) {
	payment, err := AmortizedPayment(principal, apr, termMonths)
	if err != nil {
		return 0, err
	}
	interest := payment*float64(termMonths) - principal
	// Floating point can land a hair below zero at apr == 0.
	if interest < -1e-9 {
		return 0, apperr.Internal(nil, "negative interest %.6f for principal=%.2f apr=%.4f term=%d", interest, principal, apr, termMonths)
	}
	return math.Max(interest, 0), nil
}

// YieldToMaturity returns the annualized return, in percent, of buying the
// remaining balance at the asking price.
func YieldToMaturity(remainingBalance, askingPrice float64, termRemainingMonths int) (float64, error) {
	if askingPrice <= 0 {
		return 0, apperr.InvalidTerms("asking price must be positive, got %.2f", askingPrice)
	}
	if termRemainingMonths <= 0 {
		return 0, apperr.InvalidTerms("remaining term must be positive, got %d months", termRemainingMonths)
	}
	yearsRemaining := float64(termRemainingMonths) / 12.0
	return ((remainingBalance - askingPrice) / askingPrice * 100) / yearsRemaining, nil
}

// DiscountPercentage returns how far below the remaining balance the asking
// price sits, in percent. Negative values mean premium pricing and are not
// an error.
func DiscountPercentage(remainingBalance, askingPrice float64) float64 {
	if remainingBalance <= 0 {
		return 0
	}
	return (remainingBalance - askingPrice) / remainingBalance * 100
}

// RoundCents rounds an amount to two decimal places.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Cents converts an amount to whole cents. Equality checks on accumulated
// amounts compare cents, so float summation drift cannot make two equal
// amounts look different.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
