package errorsx

import "errors"

// ReasonedError carries a machine-readable reason code alongside the
// underlying error. The first reason attached to a chain wins.
type ReasonedError struct {
	Reason ReasonCode
	Err    error
}

func (e *ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *ReasonedError) Unwrap() error { return e.Err }

// Wrap attaches a reason code to err. A nil err stays nil and a chain
// that already carries a reason is returned unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return &ReasonedError{Reason: reason, Err: err}
}

// Reason reports the reason code carried by err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re *ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries exactly the given reason.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
