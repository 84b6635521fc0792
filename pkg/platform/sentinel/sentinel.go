// Package sentinel holds infrastructure-level facts returned by stores.
//
// Stores return these (optionally wrapped); services translate them into coded
// domain errors. Validation failures never use sentinels.
package sentinel

import "errors"

var (
	// ErrNotFound: the record does not exist within the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed: a unique key (email, phone, token, name) is taken.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: the record is in the wrong state for the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a backing service cannot be reached.
	ErrUnavailable = errors.New("unavailable")
)
