package attendance

import "errors"

// Scan verification outcomes. Every one except ErrServer is an expected,
// user-facing result; the caller retries by scanning a fresh code.
var (
	ErrInvalidToken    = errors.New("invalid QR data")
	ErrSubjectMismatch = errors.New("invalid or mismatched QR code")
	ErrTokenExpired    = errors.New("QR code expired, scan the live code")
	ErrAlreadyMarked   = errors.New("attendance already marked today")
	ErrNotFound        = errors.New("subject not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrServer          = errors.New("server error")
)

// Outcome is the metric and audit label for a Verify result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrSubjectMismatch):
		return "subject_mismatch"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "server_error"
	}
}
