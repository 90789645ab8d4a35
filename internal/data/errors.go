package data

import "errors"

var (
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrPickupNotFound is returned when no pickup matches the lookup.
	ErrPickupNotFound = errors.New("pickup not found")
	// ErrStatusConflict is returned by conditional writes when the stored
	// document no longer holds the expected status.
	ErrStatusConflict = errors.New("pickup status changed concurrently")
)
