package ledger

import "errors"

var (
	// ErrLedgerUnavailable is returned when the ledger file is missing, empty or unparseable
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrMissingColumn is returned when the header lacks a column the ledger relies on
	ErrMissingColumn = errors.New("ledger missing required column")

	// ErrInvalidRow is returned when an active row has an empty required field
	ErrInvalidRow = errors.New("ledger row invalid")

	// ErrIntegrity is returned when more than one row matches a meeting instance
	ErrIntegrity = errors.New("data integrity error")

	// ErrNoMatch is returned when a mutation targets a meeting with no ledger row
	ErrNoMatch = errors.New("no ledger row matches meeting")

	// ErrUnknownColumn is returned when criteria name a column the ledger does not have
	ErrUnknownColumn = errors.New("unknown ledger column")

	// ErrModifiedExternally is returned by Persist when the file changed on disk after Load
	ErrModifiedExternally = errors.New("ledger modified externally since load")
)
