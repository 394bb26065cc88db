// Package expiry closes out active inspection instances: overdue ones are
// expired with a performance penalty, fully answered ones are completed.
package expiry

import "time"

// Penalty thresholds. An overdue time exactly on a threshold falls in the
// lower bucket.
const (
	minorOverdue    = time.Hour
	moderateOverdue = 4 * time.Hour
	severeOverdue   = 24 * time.Hour
)

// Penalty returns the performance penalty for an instance that expired
// overdue after its expiry date.
func Penalty(overdue time.Duration) int {
	switch {
	case overdue <= minorOverdue:
		return 5
	case overdue <= moderateOverdue:
		return 10
	case overdue <= severeOverdue:
		return 25
	default:
		return 50
	}
}
