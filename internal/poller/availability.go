package poller

// Availability is the per-device health classification driven by poll
// outcomes. It is the only place failure counts are tracked.
type Availability string

const (
	// AvailabilityHealthy means the last poll succeeded.
	AvailabilityHealthy Availability = "healthy"
	// AvailabilityDegraded means 1 to threshold-1 consecutive failures.
	AvailabilityDegraded Availability = "degraded"
	// AvailabilityUnavailable means the failure threshold was reached.
	// The device is excluded from topology resolution but keeps being
	// polled so it can recover automatically.
	AvailabilityUnavailable Availability = "unavailable"
)

// failureTracker implements the availability state machine:
//
//	Healthy -(failure)-> Degraded(1) -(failure)-> ... -(n>=threshold)-> Unavailable
//	any state -(success)-> Healthy, failure count reset to 0
type failureTracker struct {
	threshold int
	failures  int
}

func newFailureTracker(threshold int) *failureTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &failureTracker{threshold: threshold}
}

// Success records a successful poll. Exactly one success returns the device
// to Healthy regardless of how many failures preceded it.
func (t *failureTracker) Success() Availability {
	t.failures = 0
	return AvailabilityHealthy
}

// Failure records a failed poll and returns the resulting state.
func (t *failureTracker) Failure() Availability {
	t.failures++
	return t.State()
}

// State returns the current availability.
func (t *failureTracker) State() Availability {
	switch {
	case t.failures == 0:
		return AvailabilityHealthy
	case t.failures < t.threshold:
		return AvailabilityDegraded
	default:
		return AvailabilityUnavailable
	}
}

// Failures returns the consecutive failure count.
func (t *failureTracker) Failures() int {
	return t.failures
}
