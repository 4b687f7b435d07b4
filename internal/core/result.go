package core

import "fmt"

// Result is the status code returned by every handle primitive.
type Result int

const (
	ResultOK Result = iota
	ResultCancelled
	ResultUnknown
	ResultInvalidArgument
	ResultDeadlineExceeded
	ResultNotFound
	ResultAlreadyExists
	ResultPermissionDenied
	ResultResourceExhausted
	ResultFailedPrecondition
	ResultAborted
	ResultOutOfRange
	ResultUnimplemented
	ResultInternal
	ResultUnavailable
	ResultDataLoss
	ResultBusy
	ResultShouldWait
)

var resultNames = [...]string{
	ResultOK:                 "OK",
	ResultCancelled:          "CANCELLED",
	ResultUnknown:            "UNKNOWN",
	ResultInvalidArgument:    "INVALID_ARGUMENT",
	ResultDeadlineExceeded:   "DEADLINE_EXCEEDED",
	ResultNotFound:           "NOT_FOUND",
	ResultAlreadyExists:      "ALREADY_EXISTS",
	ResultPermissionDenied:   "PERMISSION_DENIED",
	ResultResourceExhausted:  "RESOURCE_EXHAUSTED",
	ResultFailedPrecondition: "FAILED_PRECONDITION",
	ResultAborted:            "ABORTED",
	ResultOutOfRange:         "OUT_OF_RANGE",
	ResultUnimplemented:      "UNIMPLEMENTED",
	ResultInternal:           "INTERNAL",
	ResultUnavailable:        "UNAVAILABLE",
	ResultDataLoss:           "DATA_LOSS",
	ResultBusy:               "BUSY",
	ResultShouldWait:         "SHOULD_WAIT",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("RESULT(%d)", int(r))
}

// PeerGone reports whether r means the other end of the pipe is closed.
func (r Result) PeerGone() bool { return r == ResultFailedPrecondition }
