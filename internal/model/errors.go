package model

import "errors"

// Domain errors
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrInvalidState   = errors.New("command not valid in current game state")
	ErrWriteConflict  = errors.New("conditional update lost the race")

	// Question generation failures. Both are recovered by local fallback
	// questions and never abort a join.
	ErrUpstreamUnavailable = errors.New("question source unavailable")
	ErrMalformedResponse   = errors.New("question source returned malformed content")
)

// IsNotFound checks if an error is a not-found type error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGameNotFound) || errors.Is(err, ErrPlayerNotFound)
}

// IsConflict reports an invalid-state or lost-race error; callers should
// re-sync from the subscribed state rather than retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrWriteConflict)
}
