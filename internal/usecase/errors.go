package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorParseFailure           ErrorCode = "PARSE_FAILURE"
	ErrorUnknownAvatarType      ErrorCode = "UNKNOWN_AVATAR_TYPE"
	ErrorUpstreamGeneration     ErrorCode = "UPSTREAM_GENERATION_ERROR"
	ErrorJobSubmission          ErrorCode = "JOB_SUBMISSION_ERROR"
	ErrorSynthesis              ErrorCode = "SYNTHESIS_ERROR"
	ErrorMissingResultURL       ErrorCode = "MISSING_RESULT_URL"
	ErrorSourceAssetUnavailable ErrorCode = "SOURCE_ASSET_UNAVAILABLE"
	ErrorPollTimeout            ErrorCode = "POLL_TIMEOUT"
	ErrorSessionConflict        ErrorCode = "SESSION_CONFLICT"
	ErrorInternal               ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal when there is none.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
