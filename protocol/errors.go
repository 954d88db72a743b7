package protocol

import (
	"errors"
)

var (
	// ErrDecode marks a malformed event, payload or call data. Permanent.
	ErrDecode = errors.New("decode error")
	// ErrPacketNotFound means the capture for a message id has not been observed yet.
	ErrPacketNotFound = errors.New("packet not found")
	// ErrParamsMismatch means assignment parameters disagree with the captured packet. Permanent.
	ErrParamsMismatch = errors.New("assignment parameters mismatch")
	// ErrTimeout means the confirmation depth was not reached within the poll budget.
	ErrTimeout = errors.New("confirmation timeout")
	// ErrVerification is a security strategy failure for the supplied evidence.
	ErrVerification = errors.New("verification error")
	// ErrUnsupportedProofSystem is a configuration error, always wrapped together with ErrVerification.
	ErrUnsupportedProofSystem = errors.New("unsupported proof system")
	// ErrStorageUnavailable wraps infrastructure failures of the packet store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDuplicateKey means a different packet is already stored under the same id.
	ErrDuplicateKey = errors.New("duplicate key")
)

// IsRetryable reports whether a failed attempt may succeed when triggered
// again later without any change to its inputs.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPacketNotFound),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrStorageUnavailable):
		return true
	default:
		return false
	}
}

// IsPermanent reports whether err will never succeed for the same inputs.
// Errors outside the taxonomy (RPC failures and the like) are neither
// retryable nor permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrParamsMismatch) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrUnsupportedProofSystem)
}
