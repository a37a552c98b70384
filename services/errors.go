package services

import "errors"

// Validation failures. They are returned before any write happens.
var (
	ErrInvalidUser        = errors.New("invalid user id")
	ErrUnknownAction      = errors.New("unknown action type")
	ErrUnknownAchievement = errors.New("unknown achievement type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidSource      = errors.New("invalid ledger source")
	ErrMissingIdentifier  = errors.New("missing source identifier")
	ErrIdentifierTooLong  = errors.New("source identifier too long")
	ErrNegativeBalance    = errors.New("correction would make total xp negative")
)

// IsValidation reports whether err is a caller mistake rather than a storage failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidUser, ErrUnknownAction, ErrUnknownAchievement, ErrInvalidAmount,
		ErrInvalidSource, ErrMissingIdentifier, ErrIdentifierTooLong, ErrNegativeBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
