package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	LOCK_ERR_MALFORMED_ENCODING      ErrorCode = "LOCK_ERR_MALFORMED_ENCODING"
	LOCK_ERR_COMMITMENT_MISMATCH     ErrorCode = "LOCK_ERR_COMMITMENT_MISMATCH"
	LOCK_ERR_MISSING_POLICY_PROOF    ErrorCode = "LOCK_ERR_MISSING_POLICY_PROOF"
	LOCK_ERR_PATH_INDEX_OUT_OF_RANGE ErrorCode = "LOCK_ERR_PATH_INDEX_OUT_OF_RANGE"
	LOCK_ERR_PROOF_ARITY_MISMATCH    ErrorCode = "LOCK_ERR_PROOF_ARITY_MISMATCH"
	LOCK_ERR_SIGNATURE_MISMATCH      ErrorCode = "LOCK_ERR_SIGNATURE_MISMATCH"
	LOCK_ERR_CHILD_SCRIPT_FAILED     ErrorCode = "LOCK_ERR_CHILD_SCRIPT_FAILED"
	LOCK_ERR_RESOURCE_EXHAUSTED      ErrorCode = "LOCK_ERR_RESOURCE_EXHAUSTED"
)

// Exit codes reported at the host boundary. Values 1..3 mirror the host's own
// syscall failures and are never produced by the lock itself.
const (
	EXIT_OK                  int8 = 0
	EXIT_INDEX_OUT_OF_BOUND  int8 = 1
	EXIT_ITEM_MISSING        int8 = 2
	EXIT_LENGTH_NOT_ENOUGH   int8 = 3
	EXIT_MALFORMED_ENCODING  int8 = 4
	EXIT_COMMITMENT_MISMATCH int8 = 5
	EXIT_MISSING_POLICY      int8 = 6
	EXIT_PATH_OUT_OF_RANGE   int8 = 7
	EXIT_ARITY_MISMATCH      int8 = 8
	EXIT_SIGNATURE_MISMATCH  int8 = 9
	EXIT_CHILD_SCRIPT_FAILED int8 = 10
	EXIT_HOST_FAILURE        int8 = 11
	EXIT_RESOURCE_EXHAUSTED  int8 = -1
)

var exitCodes = map[ErrorCode]int8{
	LOCK_ERR_MALFORMED_ENCODING:      EXIT_MALFORMED_ENCODING,
	LOCK_ERR_COMMITMENT_MISMATCH:     EXIT_COMMITMENT_MISMATCH,
	LOCK_ERR_MISSING_POLICY_PROOF:    EXIT_MISSING_POLICY,
	LOCK_ERR_PATH_INDEX_OUT_OF_RANGE: EXIT_PATH_OUT_OF_RANGE,
	LOCK_ERR_PROOF_ARITY_MISMATCH:    EXIT_ARITY_MISMATCH,
	LOCK_ERR_SIGNATURE_MISMATCH:      EXIT_SIGNATURE_MISMATCH,
	LOCK_ERR_CHILD_SCRIPT_FAILED:     EXIT_CHILD_SCRIPT_FAILED,
	LOCK_ERR_RESOURCE_EXHAUSTED:      EXIT_RESOURCE_EXHAUSTED,
}

type LockError struct {
	Code ErrorCode
	Msg  string
	// ChildExit is the exit code of the failing child script for
	// LOCK_ERR_CHILD_SCRIPT_FAILED, zero otherwise.
	ChildExit int8
}

func (e *LockError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if e.Code == LOCK_ERR_CHILD_SCRIPT_FAILED {
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", e.ChildExit)
		} else {
			msg = fmt.Sprintf("%s (exit code %d)", msg, e.ChildExit)
		}
	}
	if msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Fatal reports whether the error aborts the whole transaction check rather
// than rejecting a single lock group.
func (e *LockError) Fatal() bool {
	return e != nil && e.Code == LOCK_ERR_RESOURCE_EXHAUSTED
}

func lockerr(code ErrorCode, msg string) error {
	return &LockError{Code: code, Msg: msg}
}

func childFailed(exit int8, msg string) error {
	return &LockError{Code: LOCK_ERR_CHILD_SCRIPT_FAILED, Msg: msg, ChildExit: exit}
}

// CodeOf extracts the ErrorCode from err, looking through wrapping.
func CodeOf(err error) (ErrorCode, bool) {
	var le *LockError
	if errors.As(err, &le) && le != nil {
		return le.Code, true
	}
	return "", false
}

// IsFatal reports whether err carries LOCK_ERR_RESOURCE_EXHAUSTED.
func IsFatal(err error) bool {
	var le *LockError
	return errors.As(err, &le) && le.Fatal()
}

// ExitCode maps a verification outcome to the stable host exit code.
// Errors that are not *LockError, such as a host program failing with a plain
// error, map to EXIT_HOST_FAILURE.
func ExitCode(err error) int8 {
	if err == nil {
		return EXIT_OK
	}
	code, ok := CodeOf(err)
	if !ok {
		return EXIT_HOST_FAILURE
	}
	return exitCodes[code]
}
