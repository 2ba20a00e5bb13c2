// Package catalog manages the clinic's reference data: the procedure
// price list, the people who may sign a session, visit reason types and
// payment methods.
package catalog

// ProcedureTemplate is one entry of the clinic's price list. Templates
// are soft-deleted: Active=false hides an entry from new sessions while
// keeping historical lines that reference it resolvable.
type ProcedureTemplate struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unitPrice"`
	Active    bool   `db:"is_active" json:"active"`
}

// Signer is a clinician authorized to sign sessions.
type Signer struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"is_active" json:"active"`
}

// ReasonType is a configurable visit reason.
type ReasonType struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"is_active" json:"active"`
}

// PaymentMethod is a configurable way a patient settles a balance.
type PaymentMethod struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"is_active" json:"active"`
}
