package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInFlight is returned when a run is triggered while another run for
// the same selector is still executing.
var ErrRunInFlight = errors.New("a run for this selector is already in flight")

// NormalizationError reports a raw offer that cannot be mapped into a
// normalized Offer. The offer is skipped and counted; the batch continues.
type NormalizationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing %s offer: field %q %s", e.Provider, e.Field, e.Reason)
}

// PersistenceError wraps a batch write failure. It is the only error class
// that escalates to a run-level failure; nothing is published when it
// occurs.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting batch: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
