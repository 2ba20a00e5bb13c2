package ledger

import "errors"

// Validation failures leave ledger state untouched and map to 4xx at the
// HTTP layer. Persistence failures come back wrapped from the repository
// and leave every draft intact.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotEditable          = errors.New("session is not the editable draft")
	ErrSavedImmutable       = errors.New("saved sessions are immutable legal records")
	ErrConfirmationRequired = errors.New("deleting a draft requires confirmation")
	ErrNoDrafts             = errors.New("no draft sessions to commit")
	ErrSaveInFlight         = errors.New("a save is already in progress for this patient")
	ErrEditModeActive       = errors.New("another session is already in edit mode")
	ErrNoEditMode           = errors.New("session is not in edit mode")
	ErrManualBudgetOff      = errors.New("manual budget mode is not enabled")
)
