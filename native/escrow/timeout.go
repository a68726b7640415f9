package escrow

import (
	"fmt"
	"math"
)

// SecondsPerDay is the length of one timeout day.
const SecondsPerDay int64 = 86_400

// ValidateTimeoutDays enforces the [MinTimeoutDays, MaxTimeoutDays] window.
func ValidateTimeoutDays(days uint8) error {
	if days < MinTimeoutDays || days > MaxTimeoutDays {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, days)
	}
	return nil
}

// RefundDeadline returns fundedAt + days*86400, failing with ErrInvalidAmount
// instead of wrapping around.
func RefundDeadline(fundedAt int64, days uint8) (int64, error) {
	window := int64(days) * SecondsPerDay
	if fundedAt > math.MaxInt64-window {
		return 0, fmt.Errorf("%w: refund deadline overflows", ErrInvalidAmount)
	}
	return fundedAt + window, nil
}

// TimeoutElapsed reports whether a payer may reclaim a funded escrow at now.
// A record that was never funded never times out.
func TimeoutElapsed(fundedAt int64, days uint8, now int64) (bool, error) {
	if fundedAt <= 0 {
		return false, nil
	}
	deadline, err := RefundDeadline(fundedAt, days)
	if err != nil {
		return false, err
	}
	return now >= deadline, nil
}
