package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odontia/odontia/internal/domain/chart"
)

// Service coordinates one in-memory Ledger per patient on top of the
// persistence collaborators. Drafts live here until committed; reopening a
// patient reloads only the saved history.
type Service struct {
	sessions  SessionRepository
	templates TemplateSource

	mu   sync.Mutex
	open map[uuid.UUID]*Ledger
}

func NewService(sessions SessionRepository, templates TemplateSource) *Service {
	return &Service{
		sessions:  sessions,
		templates: templates,
		open:      make(map[uuid.UUID]*Ledger),
	}
}

// ledger returns the patient's open ledger, loading saved history on first
// access.
func (s *Service) ledger(ctx context.Context, patientID uuid.UUID) (*Ledger, error) {
	s.mu.Lock()
	if l, ok := s.open[patientID]; ok {
		s.mu.Unlock()
		return l, nil
	}
	s.mu.Unlock()

	history, err := s.sessions.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.open[patientID]; ok {
		return l, nil
	}
	l := NewLedger(patientID, history)
	s.open[patientID] = l
	return l, nil
}

// Close drops the patient's open ledger, discarding any uncommitted
// drafts.
func (s *Service) Close(patientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, patientID)
}

func validateDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid session date %q, want YYYY-MM-DD", date)
	}
	return nil
}

// Sessions lists the patient's sessions, saved history plus pending
// drafts, in ledger order.
func (s *Service) Sessions(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.Sessions(), nil
}

// Session returns one session by key.
func (s *Service) Session(ctx context.Context, patientID uuid.UUID, key SessionKey) (*Session, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.Session(key)
}

// EditableKey reports which of the patient's sessions may be edited.
func (s *Service) EditableKey(ctx context.Context, patientID uuid.UUID) (SessionKey, bool, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return SessionKey{}, false, err
	}
	key, ok := l.EditableKey()
	return key, ok, nil
}

// NewDraft opens a new draft session. With fromCatalog set the draft's
// lines are prefilled from the current procedure catalog.
func (s *Service) NewDraft(ctx context.Context, patientID uuid.UUID, date, reasonType string, fromCatalog bool) (*Session, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var templates []Template
	if fromCatalog {
		templates, err = s.templates.ListTemplates(ctx)
		if err != nil {
			return nil, fmt.Errorf("load procedure templates: %w", err)
		}
	}
	return l.NewDraft(date, reasonType, templates)
}

// NewDiagnosticDraft opens a draft that records an odontogram snapshot
// without billable procedures.
func (s *Service) NewDiagnosticDraft(ctx context.Context, patientID uuid.UUID, date, reasonType string, dx chart.ToothDx) (*Session, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.NewDiagnosticDraft(date, reasonType, dx)
}

// Mutate applies fn to the patient's ledger. The handler layer uses this
// for the field-level PATCH operations.
func (s *Service) Mutate(ctx context.Context, patientID uuid.UUID, fn func(*Ledger) error) error {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return err
	}
	return fn(l)
}

// DeleteDraft removes a draft behind the confirmation gate.
func (s *Service) DeleteDraft(ctx context.Context, patientID uuid.UUID, key SessionKey, confirmed bool) error {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return err
	}
	return l.DeleteDraft(key, confirmed)
}

// Commit persists all pending drafts atomically.
func (s *Service) Commit(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.Commit(ctx, s.sessions)
}

// QuickPayment records and immediately saves a payment-only session.
func (s *Service) QuickPayment(ctx context.Context, patientID uuid.UUID, date string, amount int64, methodID *int64, signer string) (*Session, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.QuickPayment(ctx, s.sessions, date, amount, methodID, signer)
}

// PreviousBalance reports the balance carried into a session from earlier
// saved history.
func (s *Service) PreviousBalance(ctx context.Context, patientID uuid.UUID, key SessionKey) (int64, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return l.PreviousBalance(key)
}

// TotalOwed reports the running figure through the given session.
func (s *Service) TotalOwed(ctx context.Context, patientID uuid.UUID, key SessionKey) (int64, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return l.TotalOwed(key)
}

// EnterEditMode starts scoped catalog editing on the editable draft.
func (s *Service) EnterEditMode(ctx context.Context, patientID uuid.UUID, key SessionKey) error {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return err
	}
	return l.EnterEditMode(key)
}

// ConfirmEditMode pushes the edited lines to the catalog and returns the
// refreshed template set.
func (s *Service) ConfirmEditMode(ctx context.Context, patientID uuid.UUID) ([]Template, error) {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return l.ConfirmEditMode(ctx, s.templates)
}

// CancelEditMode rolls the editable draft's lines back to the snapshot.
func (s *Service) CancelEditMode(ctx context.Context, patientID uuid.UUID) error {
	l, err := s.ledger(ctx, patientID)
	if err != nil {
		return err
	}
	return l.CancelEditMode()
}
