package money

import (
	"time"

	"endless-wallet/lending-backend/pkg/apperr"
)

// ScheduleKind selects the repayment cadence for a loan.
type ScheduleKind string

const (
	ScheduleMonthly   ScheduleKind = "monthly"
	ScheduleQuarterly ScheduleKind = "quarterly"
	ScheduleBalloon   ScheduleKind = "balloon"
)

// Installment is one scheduled payment of a generated repayment plan.
type Installment struct {
	Sequence int
	Amount   float64
	DueDate  time.Time
}

// BuildSchedule generates the ordered repayment plan for the given terms.
//
// Monthly plans amortize over termMonths equal payments. Quarterly plans
// amortize over termMonths/3 payments at the quarterly rate and require the
// term to be divisible by three. Balloon plans pay interest only each month
// with the principal due in the final installment.
func BuildSchedule(principal, apr float64, termMonths int, kind ScheduleKind, start time.Time) ([]Installment, error) {
	switch kind {
	case ScheduleMonthly:
		payment, err := AmortizedPayment(principal, apr, termMonths)
		if err != nil {
			return nil, err
		}
		return periodicInstallments(payment, termMonths, 1, start), nil

	case ScheduleQuarterly:
		if termMonths <= 0 || termMonths%3 != 0 {
			return nil, apperr.InvalidTerms("quarterly schedule requires a term divisible by 3, got %d months", termMonths)
		}
		periods := termMonths / 3
		payment, err := periodicPayment(principal, apr/100/4, periods)
		if err != nil {
			return nil, err
		}
		return periodicInstallments(payment, periods, 3, start), nil

	case ScheduleBalloon:
		if termMonths <= 0 {
			return nil, apperr.InvalidTerms("term must be positive, got %d months", termMonths)
		}
		if apr < 0 {
			return nil, apperr.InvalidTerms("apr must not be negative, got %.4f", apr)
		}
		if principal <= 0 {
			return nil, apperr.InvalidTerms("principal must be positive, got %.2f", principal)
		}
		interestOnly := principal * apr / 100 / 12
		installments := periodicInstallments(interestOnly, termMonths, 1, start)
		final := &installments[len(installments)-1]
		final.Amount = RoundCents(final.Amount + principal)
		return installments, nil

	default:
		return nil, apperr.InvalidTerms("unsupported schedule kind %q", kind)
	}
}

// ScheduleTotal sums the installment amounts of a plan.
func ScheduleTotal(installments []Installment) float64 {
	var total float64
	for _, inst := range installments {
		total += inst.Amount
	}
	return RoundCents(total)
}

func periodicPayment(principal, periodRate float64, periods int) (float64, error) {
	if periods <= 0 {
		return 0, apperr.InvalidTerms("term must be positive")
	}
	if periodRate < 0 {
		return 0, apperr.InvalidTerms("rate must not be negative")
	}
	if principal <= 0 {
		return 0, apperr.InvalidTerms("principal must be positive, got %.2f", principal)
	}
	if periodRate == 0 {
		return principal / float64(periods), nil
	}
	factor := pow(1+periodRate, periods)
	return principal * periodRate * factor / (factor - 1), nil
}

func periodicInstallments(payment float64, count, monthsPerPeriod int, start time.Time) []Installment {
	installments := make([]Installment, 0, count)
	for i := 1; i <= count; i++ {
		installments = append(installments, Installment{
			Sequence: i,
			Amount:   RoundCents(payment),
			DueDate:  start.AddDate(0, i*monthsPerPeriod, 0),
		})
	}
	return installments
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
