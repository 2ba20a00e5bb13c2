package ledger

import (
	"context"

	"github.com/google/uuid"
)

// SessionRepository is the persistence boundary for the session ledger.
// SaveSessions must persist all given drafts atomically: either every
// draft becomes a saved row or none do. The returned sessions carry their
// assigned row ids and frozen cumulative balances.
type SessionRepository interface {
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error)
	SaveSessions(ctx context.Context, patientID uuid.UUID, drafts []*Session) ([]*Session, error)
}

// TemplateSource provides the shared procedure catalog. SaveTemplates
// replaces the active set; ListTemplates must be re-queried afterwards
// because ids are assigned at persistence time.
type TemplateSource interface {
	ListTemplates(ctx context.Context) ([]Template, error)
	SaveTemplates(ctx context.Context, templates []Template) error
}
