// Package fault defines the error taxonomy shared by the ledger, the
// substitute pool and the workflow engine. Callers classify failures with
// errors.Is against the sentinels below; the HTTP layer maps them to status
// codes.
package fault

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when a referenced server, inventory item,
	// defect record or pool entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned on state machine guard violations,
	// including a lost reserve/issue race.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateSerial is returned on inventory intake when either serial
	// number already exists.
	ErrDuplicateSerial = errors.New("duplicate serial number")

	// ErrInUse is returned when removing a pool entry that is currently issued.
	ErrInUse = errors.New("entry in use")

	// ErrAlreadyInPool is returned when registering a server that already has
	// a pool entry.
	ErrAlreadyInPool = errors.New("server already in pool")
)

// NotFound wraps ErrNotFound with a description of the missing entity.
func NotFound(what string, id int64) error {
	return errors.Wrapf(ErrNotFound, "%s %d", what, id)
}

// InvalidTransition wraps ErrInvalidTransition with the offending state.
func InvalidTransition(what, from string) error {
	return errors.Wrapf(ErrInvalidTransition, "%s in status %s", what, from)
}

// Validation wraps ErrValidation with the failed requirement.
func Validation(msg string) error {
	return errors.Wrap(ErrValidation, msg)
}
