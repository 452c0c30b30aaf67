package affiliate

import "errors"

var (
	// ErrNotFound is returned for unknown codes, referrals and commissions
	ErrNotFound = errors.New("not found")
	// ErrInactiveCode is returned when a disabled code is used for a new referral
	ErrInactiveCode = errors.New("affiliate code is inactive")
	// ErrInvalidPercentage is returned for commission percentages outside 0..100
	ErrInvalidPercentage = errors.New("commission percentage must be between 0 and 100")
	// ErrDuplicateCode is returned when code generation keeps colliding
	ErrDuplicateCode = errors.New("affiliate code already exists")
	// ErrSelfReferral is returned when a user registers with a code they own
	ErrSelfReferral = errors.New("users cannot refer themselves")
	// ErrInvalidInput covers malformed arguments
	ErrInvalidInput = errors.New("invalid input")
)
