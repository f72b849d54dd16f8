package sluice

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known transportable error kinds. Workers may raise arbitrary kinds;
// these are the ones the admission layer itself produces or maps back to
// sentinel errors on the wait path.
const (
	KindScrapeTimeout          = "SCRAPE_TIMEOUT"
	KindScrapeTimeoutInQueue   = "SCRAPE_TIMEOUT_IN_QUEUE"
	KindResultNotFound         = "RESULT_NOT_FOUND"
	KindLedgerUnavailable      = "LEDGER_UNAVAILABLE"
	KindWorkerQueueUnavailable = "WORKER_QUEUE_UNAVAILABLE"
	KindUnknown                = "UNKNOWN"
)

// TransportableError is a structured failure raised on the worker side and
// carried across the queue boundary as JSON. The wait primitive reconstructs
// it without loss of kind or message, so callers observe the same typed
// failure the worker raised.
type TransportableError struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Cause   *TransportableError `json:"cause,omitempty"`
}

// NewTransportableError builds a transportable error with the given kind and
// message. An empty kind becomes KindUnknown.
func NewTransportableError(kind, message string) *TransportableError {
	if kind == "" {
		kind = KindUnknown
	}
	return &TransportableError{Kind: kind, Message: message}
}

// AsTransportable converts an arbitrary error into a transportable one.
// Existing transportable errors pass through unchanged; known sentinels map
// to their kinds; everything else becomes KindUnknown with the error text.
func AsTransportable(err error) *TransportableError {
	if err == nil {
		return nil
	}
	var te *TransportableError
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, ErrScrapeTimeout):
		return NewTransportableError(KindScrapeTimeout, err.Error())
	case errors.Is(err, ErrScrapeTimeoutInQueue):
		return NewTransportableError(KindScrapeTimeoutInQueue, err.Error())
	case errors.Is(err, ErrResultNotFound):
		return NewTransportableError(KindResultNotFound, err.Error())
	case errors.Is(err, ErrLedgerUnavailable):
		return NewTransportableError(KindLedgerUnavailable, err.Error())
	case errors.Is(err, ErrWorkerQueueUnavailable):
		return NewTransportableError(KindWorkerQueueUnavailable, err.Error())
	default:
		return NewTransportableError(KindUnknown, err.Error())
	}
}

// Error implements the error interface.
func (e *TransportableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause chain to errors.Is / errors.As.
func (e *TransportableError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is matches the sentinel corresponding to the error's kind, so
// errors.Is(err, sluice.ErrScrapeTimeout) works on reconstructed errors.
func (e *TransportableError) Is(target error) bool {
	switch e.Kind {
	case KindScrapeTimeout:
		return target == ErrScrapeTimeout
	case KindScrapeTimeoutInQueue:
		return target == ErrScrapeTimeoutInQueue
	case KindResultNotFound:
		return target == ErrResultNotFound
	case KindLedgerUnavailable:
		return target == ErrLedgerUnavailable
	case KindWorkerQueueUnavailable:
		return target == ErrWorkerQueueUnavailable
	default:
		return false
	}
}

// MarshalTransportable serializes the error for the queue boundary.
func MarshalTransportable(e *TransportableError) []byte {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		// The type is a closed tree of strings; marshalling cannot fail
		// with well-formed input.
		return []byte(fmt.Sprintf(`{"kind":%q,"message":%q}`, KindUnknown, e.Message))
	}
	return data
}

// ParseTransportable reconstructs a transportable error from its serialized
// form. The second return is false when the payload is not a transportable
// error (callers then treat it as a generic failure).
func ParseTransportable(data []byte) (*TransportableError, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var e TransportableError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if e.Kind == "" || e.Message == "" {
		return nil, false
	}
	return &e, true
}
