package events

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes the lifecycle milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindStarted        Kind = "TRACKING_START"
	KindPollSucceeded  Kind = "POLL_OK"
	KindPollFailed     Kind = "POLL_FAILED"
	KindRetryScheduled Kind = "RETRY_SCHEDULED"
	KindCompleted      Kind = "JOB_COMPLETED"
	KindStopped        Kind = "TRACKING_STOP"
	KindCleanupOK      Kind = "CLEANUP_OK"
	KindCleanupFailed  Kind = "CLEANUP_FAILED"
)

// Event captures a single step of a controller's lifecycle.
type Event struct {
	// Subject identifies whose progress is tracked.
	Subject string
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// Attempt is the retry counter at the time of the event.
	Attempt int
	// Backoff is the delay chosen for a scheduled retry.
	Backoff time.Duration
	// Latency is the round-trip time of the request behind the event.
	Latency time.Duration
	// Reason explains why tracking stopped.
	Reason string
	// Note carries low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Subject == "" {
		return errors.New("subject is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindStarted, KindPollSucceeded, KindPollFailed, KindCompleted, KindCleanupOK, KindCleanupFailed:
	case KindRetryScheduled:
		if e.Backoff <= 0 {
			return errors.New("retry event requires backoff")
		}
	case KindStopped:
		if e.Reason == "" {
			return errors.New("stop event requires reason")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
