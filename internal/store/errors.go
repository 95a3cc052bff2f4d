package store

import "errors"

// Sentinel errors returned by store methods. Callers distinguish
// conflict and absence outcomes with errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEntryExists indicates a create-type insert hit an existing
	// (app_id, entry_type, key) identity.
	ErrEntryExists = errors.New("spec entry already exists")

	// ErrEntryNotFound indicates an update-type mutation addressed a
	// missing (app_id, entry_type, key) identity.
	ErrEntryNotFound = errors.New("spec entry not found")

	// ErrNoPendingSteps indicates no claimable step remains for the app.
	ErrNoPendingSteps = errors.New("no pending steps")

	// ErrInvalidTransition indicates a conditional status update
	// affected zero rows: the record was not in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
