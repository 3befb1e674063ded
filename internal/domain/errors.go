package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound      = errors.New("player not found or inactive")
	ErrPlayerExists        = errors.New("player is already registered")
	ErrMatchNotFound       = errors.New("match not found")
	ErrReminderAlreadySent = errors.New("reminder already marked as sent")
	ErrInvalidDiscordID    = errors.New("invalid discord id")
	ErrInvalidUsername     = errors.New("invalid username")
	ErrInvalidStats        = errors.New("invalid statistics update")
	ErrSamePlayer          = errors.New("a player cannot duel themselves")
	ErrInvalidMatchTime    = errors.New("invalid match date or time")
	ErrMissingToken        = errors.New("discord token not configured")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrMatchNotFound)
}

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrPlayerExists,
		ErrInvalidDiscordID,
		ErrInvalidUsername,
		ErrInvalidStats,
		ErrSamePlayer,
		ErrInvalidMatchTime,
		ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return IsNotFoundError(err)
}
