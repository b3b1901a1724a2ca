/*
frequency.go - Payment frequency and due-date arithmetic

PURPOSE:
  Maps a payment-frequency identifier to "next due date" logic, and
  generates ordered due-date sequences by applying it repeatedly.

CALENDAR RULES:
  Month addition is calendar-aware: Jan 31 + 1 month lands on the last
  valid day of February, never an invalid date or a spill into March.
  time.AddDate does NOT behave this way (it normalizes Feb 31 to
  Mar 2/3), so month steps go through addMonthsClamped.

UNKNOWN FREQUENCIES:
  ParseFrequency falls back to monthly for anything it doesn't
  recognize. This is a documented policy default, not an error -
  callers that want a hard failure use ParseFrequencyStrict.
*/
package lending

import (
	"strings"
	"time"
)

// =============================================================================
// PAYMENT FREQUENCY
// =============================================================================

type PaymentFrequency string

const (
	FrequencyDaily    PaymentFrequency = "daily"
	FrequencyWeekly   PaymentFrequency = "weekly"
	FrequencyBiweekly PaymentFrequency = "biweekly"
	FrequencyMonthly  PaymentFrequency = "monthly"

	// FrequencyMinutely exists for fast end-to-end testing of overdue
	// flows. Not a production frequency.
	FrequencyMinutely PaymentFrequency = "minutely"
)

// ParseFrequency matches case-insensitively against the known set.
// Unknown identifiers degrade to monthly - a policy default the
// callers should be aware of, not an error.
func ParseFrequency(s string) PaymentFrequency {
	f, ok := matchFrequency(s)
	if !ok {
		return FrequencyMonthly
	}
	return f
}

// ParseFrequencyStrict rejects unknown identifiers with a
// configuration error instead of falling back.
func ParseFrequencyStrict(s string) (PaymentFrequency, error) {
	f, ok := matchFrequency(s)
	if !ok {
		return "", &ConfigurationError{Strategy: "frequency", Param: "identifier", Detail: "unknown frequency " + s}
	}
	return f, nil
}

func matchFrequency(s string) (PaymentFrequency, bool) {
	switch PaymentFrequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyDaily:
		return FrequencyDaily, true
	case FrequencyWeekly:
		return FrequencyWeekly, true
	case FrequencyBiweekly:
		return FrequencyBiweekly, true
	case FrequencyMonthly:
		return FrequencyMonthly, true
	case FrequencyMinutely:
		return FrequencyMinutely, true
	}
	return "", false
}

// PeriodsPerYear returns the number of payment periods in a year,
// used to derive the periodic interest rate from the annual rate.
func (f PaymentFrequency) PeriodsPerYear() int {
	switch f {
	case FrequencyDaily:
		return 360
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencyMinutely:
		return 525600
	default: // monthly, and the documented fallback
		return 12
	}
}

// =============================================================================
// DUE DATE INCREMENTER
// =============================================================================

// NextDueDate returns the next due date after the given date for the
// frequency. Unknown frequencies increment by one month (the same
// fallback ParseFrequency applies).
func NextDueDate(f PaymentFrequency, from time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMinutely:
		return from.Add(time.Minute)
	default:
		return addMonthsClamped(from, 1)
	}
}

// addMonthsClamped adds months keeping the day-of-month, clamped to the
// last valid day of the target month (Jan 31 + 1 -> Feb 28/29).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// =============================================================================
// DUE DATE SCHEDULER
// =============================================================================

// DueDates produces n ordered due dates starting from
// NextDueDate(start): each subsequent date is the incrementer applied
// to the previous one.
func DueDates(f PaymentFrequency, start time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	current := start
	for i := 0; i < n; i++ {
		current = NextDueDate(f, current)
		dates = append(dates, current)
	}
	return dates
}
