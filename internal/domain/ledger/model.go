// Package ledger owns a patient's ordered sequence of clinical sessions:
// the financial calculator, the draft lifecycle, balance aggregation, and
// the scoped catalog edit mode.
package ledger

import (
	"github.com/google/uuid"

	"github.com/odontia/odontia/internal/domain/chart"
)

// SessionKind tags a session identity as a local draft or a persisted row.
type SessionKind int

const (
	KindDraft SessionKind = iota
	KindSaved
)

func (k SessionKind) String() string {
	if k == KindSaved {
		return "saved"
	}
	return "draft"
}

// SessionKey identifies a session. Drafts carry a runtime-local id, saved
// sessions the database row id. The two id spaces are independent.
type SessionKey struct {
	Kind SessionKind `json:"kind"`
	ID   int64       `json:"id"`
}

func DraftKey(localID int64) SessionKey { return SessionKey{Kind: KindDraft, ID: localID} }
func SavedKey(id int64) SessionKey      { return SessionKey{Kind: KindSaved, ID: id} }

func (k SessionKey) IsDraft() bool { return k.Kind == KindDraft }

// Legacy translates the key to the historical sign convention used on the
// wire and in export files: saved ids are positive, draft ids negative.
func (k SessionKey) Legacy() int64 {
	if k.Kind == KindDraft {
		return -k.ID
	}
	return k.ID
}

// FromLegacy translates a sign-convention id back into a tagged key.
func FromLegacy(id int64) SessionKey {
	if id < 0 {
		return DraftKey(-id)
	}
	return SavedKey(id)
}

// ProcedureLine is a single billable item within a session. Subtotal is
// derived from unit price and quantity and never trusted as input.
type ProcedureLine struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	UnitPrice   int64   `db:"unit_price" json:"unit_price"`
	Quantity    int64   `db:"quantity" json:"quantity"`
	Subtotal    int64   `db:"subtotal" json:"subtotal"`
	Active      bool    `db:"is_active" json:"is_active"`
	TemplateID  *int64  `db:"template_id" json:"template_id,omitempty"`
	ToothNumber *string `db:"tooth_number" json:"tooth_number,omitempty"`
	Notes       *string `db:"notes" json:"notes,omitempty"`
}

// Session is a dated clinical visit. Money fields are integer minor units.
type Session struct {
	Key               SessionKey      `json:"key"`
	PatientID         uuid.UUID       `json:"patient_id"`
	Date              string          `json:"date"` // YYYY-MM-DD
	ReasonType        string          `json:"reason_type"`
	ReasonDetail      string          `json:"reason_detail,omitempty"`
	DiagnosisText     string          `json:"diagnosis_text,omitempty"`
	ClinicalNotes     string          `json:"clinical_notes,omitempty"`
	Signer            string          `json:"signer,omitempty"`
	Lines             []ProcedureLine `json:"items"`
	Budget            int64           `json:"budget"`
	Discount          int64           `json:"discount"`
	Payment           int64           `json:"payment"`
	Balance           int64           `json:"balance"`
	CumulativeBalance int64           `json:"cumulative_balance"`
	PaymentMethodID   *int64          `json:"payment_method_id,omitempty"`
	PaymentNotes      string          `json:"payment_notes,omitempty"`
	ToothDx           chart.ToothDx   `json:"tooth_dx,omitempty"`
	// ManualBudget is runtime state stamped onto a draft at commit time so
	// the repository knows not to recompute its budget. Never persisted.
	ManualBudget bool `json:"manual_budget,omitempty"`
}

// Saved reports whether the session is a persisted, immutable record.
func (s *Session) Saved() bool { return s.Key.Kind == KindSaved }

// Clone returns a deep copy, including lines and the tooth chart.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Lines = CloneLines(s.Lines)
	cp.ToothDx = s.ToothDx.Clone()
	return &cp
}

// CloneLines deep-copies a line slice, so snapshot restore never aliases
// the live session.
func CloneLines(lines []ProcedureLine) []ProcedureLine {
	if lines == nil {
		return nil
	}
	out := make([]ProcedureLine, len(lines))
	for i, l := range lines {
		cp := l
		if l.TemplateID != nil {
			v := *l.TemplateID
			cp.TemplateID = &v
		}
		if l.ToothNumber != nil {
			v := *l.ToothNumber
			cp.ToothNumber = &v
		}
		if l.Notes != nil {
			v := *l.Notes
			cp.Notes = &v
		}
		out[i] = cp
	}
	return out
}

// Template is the ledger's view of a catalog entry, used to prefill new
// drafts and to push edit-mode changes back to the catalog.
type Template struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

// sessionBefore reports whether a orders strictly before b. Sessions order
// by date; on the same day saved sessions order by row id, and drafts order
// before every saved session so a draft's previous balance never includes
// same-day rows that were saved after it was opened.
func sessionBefore(a, b *Session) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Key.Kind != b.Key.Kind {
		return a.Key.Kind == KindDraft
	}
	return a.Key.ID < b.Key.ID
}
