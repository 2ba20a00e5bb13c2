package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/odontia/odontia/internal/domain/chart"
)

// ReasonQuickPayment marks payment-only sessions created outside a visit.
const ReasonQuickPayment = "Abono a cuenta"

// Ledger owns one patient's session list. All mutation goes through it so
// the editability rule and the financial invariants cannot be bypassed.
// Which draft is editable is always derived from the list, never cached.
type Ledger struct {
	mu          sync.Mutex
	patientID   uuid.UUID
	sessions    []*Session
	nextLocalID int64
	nextLineID  int64
	// manual budget mode is runtime-only state, never persisted
	manualBudget map[SessionKey]bool
	snapshots    map[SessionKey][]ProcedureLine
	editKey      *SessionKey
	saving       bool
}

// NewLedger wraps an already-loaded session list. The list is cloned; the
// ledger owns its copy exclusively.
func NewLedger(patientID uuid.UUID, sessions []*Session) *Ledger {
	l := &Ledger{
		patientID:    patientID,
		nextLocalID:  1,
		nextLineID:   -1,
		manualBudget: make(map[SessionKey]bool),
		snapshots:    make(map[SessionKey][]ProcedureLine),
	}
	for _, s := range sessions {
		l.sessions = append(l.sessions, s.Clone())
	}
	return l
}

func (l *Ledger) PatientID() uuid.UUID { return l.patientID }

// Sessions returns deep copies ordered by (date, id).
func (l *Ledger) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s.Clone())
	}
	sortSessions(out)
	return out
}

// Session returns a deep copy of one session.
func (l *Ledger) Session(key SessionKey) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// EditableKey derives which session may currently be edited: the most
// recent draft by (date, id). Returns false when no draft exists.
func (l *Ledger) EditableKey() (SessionKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.editableKeyLocked()
}

func (l *Ledger) editableKeyLocked() (SessionKey, bool) {
	var latest *Session
	for _, s := range l.sessions {
		if s.Saved() {
			continue
		}
		if latest == nil || sessionBefore(latest, s) {
			latest = s
		}
	}
	if latest == nil {
		return SessionKey{}, false
	}
	return latest.Key, true
}

// NewDraft appends a draft session dated date. When templates are given the
// draft's lines are prefilled from the catalog, inactive by default, with
// quantities copied from the most recent session's line of the same name.
func (l *Ledger) NewDraft(date, reasonType string, templates []Template) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A newer draft would take over editability and strand the open
	// snapshot on a session whose mutations are rejected.
	if l.editKey != nil {
		return nil, ErrEditModeActive
	}

	prevQty := map[string]int64{}
	if prev := l.mostRecentLocked(); prev != nil {
		for _, line := range prev.Lines {
			prevQty[line.Name] = line.Quantity
		}
	}

	s := &Session{
		Key:        DraftKey(l.nextLocalID),
		PatientID:  l.patientID,
		Date:       date,
		ReasonType: reasonType,
	}
	l.nextLocalID++

	for _, t := range templates {
		tid := t.ID
		s.Lines = append(s.Lines, ProcedureLine{
			ID:         l.nextLineID,
			Name:       t.Name,
			UnitPrice:  t.UnitPrice,
			Quantity:   prevQty[t.Name],
			Active:     false,
			TemplateID: &tid,
		})
		l.nextLineID--
	}

	Recompute(s, false)
	l.sessions = append(l.sessions, s)
	return s.Clone(), nil
}

// NewDiagnosticDraft creates a draft carrying only an odontogram snapshot.
// The diagnosis text is seeded from the chart.
func (l *Ledger) NewDiagnosticDraft(date, reasonType string, dx chart.ToothDx) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.editKey != nil {
		return nil, ErrEditModeActive
	}

	s := &Session{
		Key:           DraftKey(l.nextLocalID),
		PatientID:     l.patientID,
		Date:          date,
		ReasonType:    reasonType,
		ToothDx:       dx.Clone(),
		DiagnosisText: chart.Summary(dx),
	}
	l.nextLocalID++

	Recompute(s, false)
	l.sessions = append(l.sessions, s)
	return s.Clone(), nil
}

// mutate runs fn against the session identified by key, enforcing the
// editability rule, then refreshes the session's financial figures.
func (l *Ledger) mutate(key SessionKey, fn func(*Session) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Saved() {
		return ErrSavedImmutable
	}
	ek, ok := l.editableKeyLocked()
	if !ok || ek != key {
		return ErrNotEditable
	}
	if err := fn(s); err != nil {
		return err
	}
	Recompute(s, l.manualBudget[key])
	return nil
}

// Update runs fn, a sequence of field mutations against the session, and
// rolls the session back to its prior state when fn returns an error. A
// refused multi-field update therefore never applies partially.
func (l *Ledger) Update(key SessionKey, fn func() error) error {
	l.mu.Lock()
	s := l.find(key)
	if s == nil {
		l.mu.Unlock()
		return ErrSessionNotFound
	}
	prior := s.Clone()
	_, hadManual := l.manualBudget[key]
	l.mu.Unlock()

	err := fn()
	if err == nil {
		return nil
	}

	l.mu.Lock()
	if cur := l.find(key); cur != nil {
		*cur = *prior
	}
	if hadManual {
		l.manualBudget[key] = true
	} else {
		delete(l.manualBudget, key)
	}
	l.mu.Unlock()
	return err
}

func (l *Ledger) SetDate(key SessionKey, date string) error {
	return l.mutate(key, func(s *Session) error {
		s.Date = date
		return nil
	})
}

func (l *Ledger) SetReason(key SessionKey, reasonType, reasonDetail string) error {
	return l.mutate(key, func(s *Session) error {
		s.ReasonType = reasonType
		s.ReasonDetail = reasonDetail
		return nil
	})
}

func (l *Ledger) SetSigner(key SessionKey, signer string) error {
	return l.mutate(key, func(s *Session) error {
		s.Signer = signer
		return nil
	})
}

func (l *Ledger) SetDiagnosisText(key SessionKey, text string) error {
	return l.mutate(key, func(s *Session) error {
		s.DiagnosisText = text
		return nil
	})
}

func (l *Ledger) SetClinicalNotes(key SessionKey, notes string) error {
	return l.mutate(key, func(s *Session) error {
		s.ClinicalNotes = notes
		return nil
	})
}

// SetToothDx replaces the session's odontogram snapshot and regenerates
// the diagnosis text from it.
func (l *Ledger) SetToothDx(key SessionKey, dx chart.ToothDx) error {
	return l.mutate(key, func(s *Session) error {
		s.ToothDx = dx.Clone()
		s.DiagnosisText = chart.Summary(dx)
		return nil
	})
}

func (l *Ledger) SetDiscount(key SessionKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("discount must be non-negative, got %d", amount)
	}
	return l.mutate(key, func(s *Session) error {
		s.Discount = amount
		return nil
	})
}

func (l *Ledger) SetPayment(key SessionKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("payment must be non-negative, got %d", amount)
	}
	return l.mutate(key, func(s *Session) error {
		s.Payment = amount
		return nil
	})
}

func (l *Ledger) SetPaymentMethod(key SessionKey, methodID *int64) error {
	return l.mutate(key, func(s *Session) error {
		s.PaymentMethodID = methodID
		return nil
	})
}

func (l *Ledger) SetPaymentNotes(key SessionKey, notes string) error {
	return l.mutate(key, func(s *Session) error {
		s.PaymentNotes = notes
		return nil
	})
}

// AddLine appends an ad-hoc procedure line. Explicit additions default to
// active; the line gets a temporary negative id until persisted.
func (l *Ledger) AddLine(key SessionKey, name string, unitPrice, quantity int64) error {
	return l.mutate(key, func(s *Session) error {
		id := l.nextLineID
		l.nextLineID--
		s.Lines = append(s.Lines, ProcedureLine{
			ID:        id,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  quantity,
			Active:    true,
		})
		return nil
	})
}

func (l *Ledger) RemoveLine(key SessionKey, lineID int64) error {
	return l.mutate(key, func(s *Session) error {
		for i, line := range s.Lines {
			if line.ID == lineID {
				s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("line %d: %w", lineID, ErrSessionNotFound)
	})
}

// UpdateLine changes a line's name and unit price.
func (l *Ledger) UpdateLine(key SessionKey, lineID int64, name string, unitPrice int64) error {
	return l.mutate(key, func(s *Session) error {
		line := findLine(s, lineID)
		if line == nil {
			return fmt.Errorf("line %d: %w", lineID, ErrSessionNotFound)
		}
		line.Name = name
		line.UnitPrice = unitPrice
		return nil
	})
}

// SetLineQuantity sets a line's quantity. A nonzero quantity activates the
// line; zero deactivates it.
func (l *Ledger) SetLineQuantity(key SessionKey, lineID int64, quantity int64) error {
	return l.mutate(key, func(s *Session) error {
		line := findLine(s, lineID)
		if line == nil {
			return fmt.Errorf("line %d: %w", lineID, ErrSessionNotFound)
		}
		line.Quantity = quantity
		line.Active = quantity > 0
		return nil
	})
}

// ToggleLine flips a line's active flag, setting quantity 1 when turned on
// and 0 when turned off.
func (l *Ledger) ToggleLine(key SessionKey, lineID int64) error {
	return l.mutate(key, func(s *Session) error {
		line := findLine(s, lineID)
		if line == nil {
			return fmt.Errorf("line %d: %w", lineID, ErrSessionNotFound)
		}
		line.Active = !line.Active
		if line.Active {
			line.Quantity = 1
		} else {
			line.Quantity = 0
		}
		return nil
	})
}

// SetManualBudget toggles manual budget mode for the editable draft.
// Disabling it recomputes the budget from the active lines.
func (l *Ledger) SetManualBudget(key SessionKey, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Saved() {
		return ErrSavedImmutable
	}
	ek, ok := l.editableKeyLocked()
	if !ok || ek != key {
		return ErrNotEditable
	}
	if enabled {
		l.manualBudget[key] = true
	} else {
		delete(l.manualBudget, key)
		Recompute(s, false)
	}
	return nil
}

// SetBudget overrides the budget; permitted only in manual budget mode.
func (l *Ledger) SetBudget(key SessionKey, budget int64) error {
	l.mu.Lock()
	manual := l.manualBudget[key]
	l.mu.Unlock()
	if !manual {
		return ErrManualBudgetOff
	}
	return l.mutate(key, func(s *Session) error {
		s.Budget = budget
		return nil
	})
}

// DeleteDraft removes a draft after explicit confirmation. Saved sessions
// can never be deleted. Deletion is refused while an edit-mode snapshot is
// open to avoid orphaning it.
func (l *Ledger) DeleteDraft(key SessionKey, confirmed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Saved() {
		return ErrSavedImmutable
	}
	if l.editKey != nil {
		return ErrEditModeActive
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	for i, existing := range l.sessions {
		if existing.Key == key {
			l.sessions = append(l.sessions[:i], l.sessions[i+1:]...)
			break
		}
	}
	delete(l.manualBudget, key)
	delete(l.snapshots, key)
	return nil
}

// Drafts returns deep copies of the pending drafts in (date, id) order.
func (l *Ledger) Drafts() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draftsLocked()
}

func (l *Ledger) draftsLocked() []*Session {
	var out []*Session
	for _, s := range l.sessions {
		if !s.Saved() {
			out = append(out, s.Clone())
		}
	}
	sortSessions(out)
	return out
}

// PreviousBalance reports the frozen balance carried into the given
// session from earlier saved sessions.
func (l *Ledger) PreviousBalance(key SessionKey) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return 0, ErrSessionNotFound
	}
	return PreviousBalance(l.sessions, s), nil
}

// TotalOwed reports previous balance plus the session's own balance.
func (l *Ledger) TotalOwed(key SessionKey) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.find(key)
	if s == nil {
		return 0, ErrSessionNotFound
	}
	return TotalOwed(l.sessions, s), nil
}

// Commit persists every pending draft in one atomic repository call. While
// the call is in flight further commits are refused; on failure the drafts
// remain untouched so the caller can retry.
func (l *Ledger) Commit(ctx context.Context, repo SessionRepository) ([]*Session, error) {
	l.mu.Lock()
	if l.saving {
		l.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	if l.editKey != nil {
		l.mu.Unlock()
		return nil, ErrEditModeActive
	}
	drafts := l.draftsLocked()
	if len(drafts) == 0 {
		l.mu.Unlock()
		return nil, ErrNoDrafts
	}
	for _, d := range drafts {
		d.ManualBudget = l.manualBudget[d.Key]
	}
	l.saving = true
	l.mu.Unlock()

	saved, err := repo.SaveSessions(ctx, l.patientID, drafts)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.saving = false
	if err != nil {
		return nil, fmt.Errorf("save sessions: %w", err)
	}

	l.replaceDraftsLocked(saved)

	out := make([]*Session, 0, len(saved))
	for _, s := range saved {
		out = append(out, s.Clone())
	}
	return out, nil
}

// QuickPayment records a standalone payment against the account: a
// payment-only session saved immediately, with a negative balance.
func (l *Ledger) QuickPayment(ctx context.Context, repo SessionRepository, date string, amount int64, methodID *int64, signer string) (*Session, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	if l.saving {
		l.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	s := &Session{
		Key:             DraftKey(l.nextLocalID),
		PatientID:       l.patientID,
		Date:            date,
		ReasonType:      ReasonQuickPayment,
		Signer:          signer,
		Payment:         amount,
		PaymentMethodID: methodID,
	}
	l.nextLocalID++
	Recompute(s, false)
	l.saving = true
	l.mu.Unlock()

	saved, err := repo.SaveSessions(ctx, l.patientID, []*Session{s})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.saving = false
	if err != nil {
		return nil, fmt.Errorf("save quick payment: %w", err)
	}
	for _, sv := range saved {
		l.sessions = append(l.sessions, sv.Clone())
	}
	if len(saved) == 0 {
		return nil, fmt.Errorf("repository returned no saved session")
	}
	return saved[len(saved)-1].Clone(), nil
}

// replaceDraftsLocked swaps the pending drafts for their saved rows after
// a successful commit.
func (l *Ledger) replaceDraftsLocked(saved []*Session) {
	kept := l.sessions[:0]
	for _, s := range l.sessions {
		if s.Saved() {
			kept = append(kept, s)
		} else {
			delete(l.manualBudget, s.Key)
			delete(l.snapshots, s.Key)
		}
	}
	l.sessions = kept
	for _, s := range saved {
		l.sessions = append(l.sessions, s.Clone())
	}
}

func (l *Ledger) find(key SessionKey) *Session {
	for _, s := range l.sessions {
		if s.Key == key {
			return s
		}
	}
	return nil
}

func (l *Ledger) mostRecentLocked() *Session {
	var latest *Session
	for _, s := range l.sessions {
		if latest == nil || sessionBefore(latest, s) {
			latest = s
		}
	}
	return latest
}

func findLine(s *Session, lineID int64) *ProcedureLine {
	for i := range s.Lines {
		if s.Lines[i].ID == lineID {
			return &s.Lines[i]
		}
	}
	return nil
}

func sortSessions(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessionBefore(sessions[i], sessions[j])
	})
}
