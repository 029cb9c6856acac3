package errs

import "errors"

// Общие виды ошибок движка. HTTP-слой маппит их на статусы,
// всё остальное проверяет через errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrGateSequence      = errors.New("gate sequence violation")
	ErrGateBlocked       = errors.New("blocked by quality gates")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Retryable: имеет ли смысл повторять операцию позже.
func Retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
