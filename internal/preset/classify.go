package preset

import (
	"errors"
	"strings"
	"time"
)

// #region classify
// ClassifyFailure maps a load error and its duration to a failure class.
// A nil error that took longer than slow is still a soft failure. Anything
// that is neither a runtime abort nor aesthetic is treated as transient.
func ClassifyFailure(err error, elapsed, slow time.Duration) FailureClass {
	if err == nil {
		if slow > 0 && elapsed > slow {
			return FailureSoft
		}
		return FailureNone
	}
	if errors.Is(err, ErrAesthetic) {
		return FailureAesthetic
	}
	msg := err.Error()
	if strings.Contains(msg, "Aborted(") || strings.Contains(msg, "exception catching is not enabled") {
		return FailureHard
	}
	return FailureSoft
}

// #endregion classify
