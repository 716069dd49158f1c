package domain

import (
	"math"
	"time"
)

// NeedsReset reports whether lastReset falls in an earlier calendar month
// than now. Only year and month are compared, so a user who was idle for
// several months is reset exactly once.
func NeedsReset(lastReset, now time.Time) bool {
	last := lastReset.UTC()
	current := now.UTC()
	return last.Year() != current.Year() || last.Month() != current.Month()
}

// MonthStart is the first instant of the month containing now.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextResetDate is the first instant of the month after now.
func NextResetDate(now time.Time) time.Time {
	return MonthStart(now).AddDate(0, 1, 0)
}

func UsagePercentage(usage, limit int) int {
	if limit <= 0 {
		if usage > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(usage) / float64(limit) * 100))
}

func Remaining(limit, usage, reserved int) int {
	left := limit - usage - reserved
	if left < 0 {
		return 0
	}
	return left
}

// StatusOf derives the reported status of a ledger that has already had the
// monthly reset applied. In-flight reservations count against Remaining and
// CanUse; a reservation orphaned by a crash between reserve and
// commit/release holds its unit until the next monthly reset.
func StatusOf(l Ledger, now time.Time) Status {
	remaining := Remaining(l.MonthlyLimit, l.CurrentUsage, l.Reserved)
	return Status{
		CanUse:          remaining > 0,
		Remaining:       remaining,
		Limit:           l.MonthlyLimit,
		CurrentUsage:    l.CurrentUsage,
		NextResetDate:   NextResetDate(now),
		UsagePercentage: UsagePercentage(l.CurrentUsage, l.MonthlyLimit),
	}
}
