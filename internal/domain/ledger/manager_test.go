package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/odontia/odontia/internal/domain/chart"
)

// mockSessionRepo persists sessions into a map, assigning sequential row
// ids the way the database would.
type mockSessionRepo struct {
	nextID   int64
	saved    map[uuid.UUID][]*Session
	failNext bool
	started  chan struct{}
	release  chan struct{}
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{nextID: 1, saved: make(map[uuid.UUID][]*Session)}
}

func (m *mockSessionRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Session, error) {
	var out []*Session
	for _, s := range m.saved[patientID] {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *mockSessionRepo) SaveSessions(_ context.Context, patientID uuid.UUID, drafts []*Session) ([]*Session, error) {
	if m.started != nil {
		close(m.started)
		m.started = nil
	}
	if m.release != nil {
		<-m.release
	}
	if m.failNext {
		m.failNext = false
		return nil, errors.New("storage fault")
	}

	var out []*Session
	for _, d := range drafts {
		s := d.Clone()
		Recompute(s, s.ManualBudget)
		s.Key = SavedKey(m.nextID)
		s.ManualBudget = false
		m.nextID++

		var previous int64
		for _, prior := range m.saved[patientID] {
			if prior.Key.ID < s.Key.ID {
				previous += prior.Balance
			}
		}
		s.CumulativeBalance = previous + s.Balance

		m.saved[patientID] = append(m.saved[patientID], s)
		out = append(out, s.Clone())
	}
	return out, nil
}

func testPatient() uuid.UUID { return uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") }

func TestEditableKey_NoDrafts(t *testing.T) {
	l := NewLedger(testPatient(), []*Session{
		savedSession(1, "2024-01-01", 100),
	})
	if _, ok := l.EditableKey(); ok {
		t.Error("expected no editable session without drafts")
	}
}

func TestEditableKey_MostRecentDraftWins(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	first, _ := l.NewDraft("2024-01-10", "Dolor", nil)
	second, _ := l.NewDraft("2024-02-10", "Control", nil)

	key, ok := l.EditableKey()
	if !ok {
		t.Fatal("expected an editable session")
	}
	if key != second.Key {
		t.Errorf("editable = %v, want the later draft %v", key, second.Key)
	}
	if key == first.Key {
		t.Error("older draft must not be editable")
	}
}

func TestEditableKey_SameDateTieBreak(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	l.NewDraft("2024-01-10", "Dolor", nil)
	second, _ := l.NewDraft("2024-01-10", "Control", nil)

	key, _ := l.EditableKey()
	if key != second.Key {
		t.Errorf("editable = %v, want the most recently created draft %v", key, second.Key)
	}
}

func TestNewDraft_PrefillsFromCatalogAndPreviousSession(t *testing.T) {
	prev := savedSession(1, "2024-01-01", 0)
	prev.Lines = []ProcedureLine{
		{ID: 10, Name: "Limpieza", UnitPrice: 70, Quantity: 2, Active: true},
	}
	l := NewLedger(testPatient(), []*Session{prev})

	templates := []Template{
		{ID: 1, Name: "Limpieza", UnitPrice: 80},
		{ID: 2, Name: "Resina", UnitPrice: 120},
	}
	draft, err := l.NewDraft("2024-02-01", "Dolor", templates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(draft.Lines) != 2 {
		t.Fatalf("expected 2 prefilled lines, got %d", len(draft.Lines))
	}
	for _, line := range draft.Lines {
		if line.Active {
			t.Errorf("template line %q must start inactive", line.Name)
		}
		if line.TemplateID == nil {
			t.Errorf("template line %q missing template back-reference", line.Name)
		}
	}
	if draft.Lines[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2 copied from previous session", draft.Lines[0].Quantity)
	}
	if draft.Lines[1].Quantity != 0 {
		t.Errorf("quantity = %d, want 0 (no match in previous session)", draft.Lines[1].Quantity)
	}
	if draft.Lines[0].UnitPrice != 80 {
		t.Errorf("unit price = %d, want the catalog price 80", draft.Lines[0].UnitPrice)
	}
	if draft.Budget != 0 {
		t.Errorf("budget = %d, want 0 (all lines inactive)", draft.Budget)
	}
}

func TestMutate_SavedSessionRejected(t *testing.T) {
	saved := savedSession(1, "2024-01-01", 100)
	l := NewLedger(testPatient(), []*Session{saved})
	l.NewDraft("2024-02-01", "Dolor", nil)

	if err := l.SetDiscount(saved.Key, 10); !errors.Is(err, ErrSavedImmutable) {
		t.Errorf("expected ErrSavedImmutable, got %v", err)
	}

	got, _ := l.Session(saved.Key)
	if got.Discount != 0 {
		t.Errorf("saved session was mutated: discount = %d", got.Discount)
	}
}

func TestMutate_OlderDraftRejected(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	old, _ := l.NewDraft("2024-01-10", "Dolor", nil)
	l.NewDraft("2024-02-10", "Control", nil)

	if err := l.SetPayment(old.Key, 50); !errors.Is(err, ErrNotEditable) {
		t.Errorf("expected ErrNotEditable, got %v", err)
	}
}

func TestMutate_UnknownSession(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	if err := l.SetSigner(DraftKey(99), "Dr. Ruiz"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAddLine_RecomputesTotals(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)

	if err := l.AddLine(draft.Key, "Extraccion", 150, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := l.Session(draft.Key)
	if len(got.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(got.Lines))
	}
	if !got.Lines[0].Active {
		t.Error("explicit additions default to active")
	}
	if got.Lines[0].ID >= 0 {
		t.Errorf("unpersisted line id = %d, want negative", got.Lines[0].ID)
	}
	if got.Budget != 150 {
		t.Errorf("budget = %d, want 150", got.Budget)
	}
}

func TestToggleLine_QuantityFollowsActive(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", []Template{{ID: 1, Name: "Resina", UnitPrice: 120}})
	lineID := draft.Lines[0].ID

	if err := l.ToggleLine(draft.Key, lineID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := l.Session(draft.Key)
	if !got.Lines[0].Active || got.Lines[0].Quantity != 1 {
		t.Errorf("after toggle on: active=%v qty=%d, want true/1", got.Lines[0].Active, got.Lines[0].Quantity)
	}
	if got.Budget != 120 {
		t.Errorf("budget = %d, want 120", got.Budget)
	}

	if err := l.ToggleLine(draft.Key, lineID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = l.Session(draft.Key)
	if got.Lines[0].Active || got.Lines[0].Quantity != 0 {
		t.Errorf("after toggle off: active=%v qty=%d, want false/0", got.Lines[0].Active, got.Lines[0].Quantity)
	}
}

func TestSetLineQuantity_ZeroDeactivates(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)
	l.AddLine(draft.Key, "Resina", 120, 1)
	got, _ := l.Session(draft.Key)
	lineID := got.Lines[0].ID

	if err := l.SetLineQuantity(draft.Key, lineID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = l.Session(draft.Key)
	if got.Lines[0].Subtotal != 360 {
		t.Errorf("subtotal = %d, want 360", got.Lines[0].Subtotal)
	}

	if err := l.SetLineQuantity(draft.Key, lineID, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = l.Session(draft.Key)
	if got.Lines[0].Active {
		t.Error("zero quantity must deactivate the line")
	}
	if got.Budget != 0 {
		t.Errorf("budget = %d, want 0", got.Budget)
	}
}

func TestManualBudget_HeldAcrossItemChanges(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)

	if err := l.SetBudget(draft.Key, 900); !errors.Is(err, ErrManualBudgetOff) {
		t.Fatalf("expected ErrManualBudgetOff, got %v", err)
	}

	if err := l.SetManualBudget(draft.Key, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.SetBudget(draft.Key, 900); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.AddLine(draft.Key, "Extraccion", 150, 1)
	got, _ := l.Session(draft.Key)
	if got.Budget != 900 {
		t.Errorf("budget = %d, want manual 900 unaffected by item changes", got.Budget)
	}

	if err := l.SetManualBudget(draft.Key, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = l.Session(draft.Key)
	if got.Budget != 150 {
		t.Errorf("budget = %d, want 150 recomputed after manual mode off", got.Budget)
	}
}

func TestDeleteDraft_Guards(t *testing.T) {
	saved := savedSession(1, "2024-01-01", 100)
	l := NewLedger(testPatient(), []*Session{saved})
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)

	if err := l.DeleteDraft(saved.Key, true); !errors.Is(err, ErrSavedImmutable) {
		t.Errorf("deleting saved: expected ErrSavedImmutable, got %v", err)
	}
	if err := l.DeleteDraft(draft.Key, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("unconfirmed delete: expected ErrConfirmationRequired, got %v", err)
	}
	if err := l.DeleteDraft(draft.Key, true); err != nil {
		t.Fatalf("confirmed delete: unexpected error: %v", err)
	}
	if _, err := l.Session(draft.Key); !errors.Is(err, ErrSessionNotFound) {
		t.Error("draft still present after confirmed delete")
	}
	if len(l.Sessions()) != 1 {
		t.Errorf("expected 1 session left, got %d", len(l.Sessions()))
	}
}

func TestSetToothDx_SeedsDiagnosis(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Control", nil)

	dx := chart.ToothDx{"11": {"Caries"}, "36": {"Fractura"}}
	if err := l.SetToothDx(draft.Key, dx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := l.Session(draft.Key)
	want := "Diente 11: Caries\nDiente 36: Fractura"
	if got.DiagnosisText != want {
		t.Errorf("diagnosis = %q, want %q", got.DiagnosisText, want)
	}

	// mutating the caller's map must not leak into the session
	dx["11"][0] = "Gingivitis"
	got, _ = l.Session(draft.Key)
	if got.ToothDx["11"][0] != "Caries" {
		t.Error("tooth chart aliases the caller's map")
	}
}

func TestCommit_TransitionsDraftsToSaved(t *testing.T) {
	repo := newMockSessionRepo()
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)
	l.AddLine(draft.Key, "Limpieza", 80, 1)
	l.SetPayment(draft.Key, 30)

	saved, err := l.Commit(context.Background(), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 saved session, got %d", len(saved))
	}
	if !saved[0].Saved() {
		t.Error("committed session must be saved")
	}
	if saved[0].Balance != 50 {
		t.Errorf("balance = %d, want 50", saved[0].Balance)
	}
	if saved[0].CumulativeBalance != 50 {
		t.Errorf("cumulative = %d, want 50", saved[0].CumulativeBalance)
	}

	if len(l.Drafts()) != 0 {
		t.Error("drafts remain after successful commit")
	}
	if _, ok := l.EditableKey(); ok {
		t.Error("no session should be editable after commit")
	}
}

func TestCommit_AllDraftsTogether(t *testing.T) {
	repo := newMockSessionRepo()
	l := NewLedger(testPatient(), nil)
	l.NewDraft("2024-01-10", "Dolor", nil)
	l.NewDraft("2024-02-10", "Control", nil)

	saved, err := l.Commit(context.Background(), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected both drafts saved, got %d", len(saved))
	}
	if saved[0].Date != "2024-01-10" || saved[1].Date != "2024-02-10" {
		t.Errorf("drafts saved out of order: %s, %s", saved[0].Date, saved[1].Date)
	}
}

func TestCommit_FailureLeavesDraftsIntact(t *testing.T) {
	repo := newMockSessionRepo()
	repo.failNext = true
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)
	l.AddLine(draft.Key, "Limpieza", 80, 1)

	if _, err := l.Commit(context.Background(), repo); err == nil {
		t.Fatal("expected commit to fail")
	}

	drafts := l.Drafts()
	if len(drafts) != 1 {
		t.Fatalf("expected draft kept after failure, got %d", len(drafts))
	}
	if len(drafts[0].Lines) != 1 || drafts[0].Lines[0].Name != "Limpieza" {
		t.Error("draft contents changed by failed commit")
	}

	// retry succeeds with the same draft set
	if _, err := l.Commit(context.Background(), repo); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(l.Drafts()) != 0 {
		t.Error("drafts remain after successful retry")
	}
}

func TestCommit_NoDrafts(t *testing.T) {
	l := NewLedger(testPatient(), []*Session{savedSession(1, "2024-01-01", 0)})
	if _, err := l.Commit(context.Background(), newMockSessionRepo()); !errors.Is(err, ErrNoDrafts) {
		t.Errorf("expected ErrNoDrafts, got %v", err)
	}
}

func TestCommit_ReentrancyGuard(t *testing.T) {
	repo := newMockSessionRepo()
	repo.started = make(chan struct{})
	repo.release = make(chan struct{})

	l := NewLedger(testPatient(), nil)
	l.NewDraft("2024-02-01", "Dolor", nil)

	firstDone := make(chan error, 1)
	started := repo.started
	go func() {
		_, err := l.Commit(context.Background(), repo)
		firstDone <- err
	}()

	<-started
	if _, err := l.Commit(context.Background(), repo); !errors.Is(err, ErrSaveInFlight) {
		t.Errorf("expected ErrSaveInFlight while save in progress, got %v", err)
	}
	close(repo.release)

	if err := <-firstDone; err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
}

func TestQuickPayment(t *testing.T) {
	repo := newMockSessionRepo()
	l := NewLedger(testPatient(), nil)

	method := int64(2)
	s, err := l.QuickPayment(context.Background(), repo, "2024-02-05", 500, &method, "Dr. Ruiz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Saved() {
		t.Error("quick payment must be saved immediately")
	}
	if s.ReasonType != ReasonQuickPayment {
		t.Errorf("reason = %q, want %q", s.ReasonType, ReasonQuickPayment)
	}
	if s.Balance != -500 {
		t.Errorf("balance = %d, want -500", s.Balance)
	}
	if len(l.Drafts()) != 0 {
		t.Error("quick payment must not leave a draft behind")
	}
}

func TestQuickPayment_RejectsNonPositiveAmount(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	if _, err := l.QuickPayment(context.Background(), newMockSessionRepo(), "2024-02-05", 0, nil, ""); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestLedger_EndToEndScenario(t *testing.T) {
	prior := savedSession(1, "2024-01-01", 150)
	prior.Budget, prior.Payment = 200, 50
	l := NewLedger(testPatient(), []*Session{prior})

	draft, err := l.NewDraft("2024-02-01", "Dolor", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AddLine(draft.Key, "Tratamiento A", 80, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AddLine(draft.Key, "Tratamiento B", 20, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := l.Session(draft.Key)
	if err := l.ToggleLine(draft.Key, got.Lines[1].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.SetDiscount(draft.Key, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ = l.Session(draft.Key)
	if got.Budget != 80 {
		t.Errorf("budget = %d, want 80 (inactive line excluded)", got.Budget)
	}
	if got.Balance != 70 {
		t.Errorf("balance = %d, want 70", got.Balance)
	}

	previous, err := l.PreviousBalance(draft.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if previous != 150 {
		t.Errorf("previousBalance = %d, want 150", previous)
	}
	owed, err := l.TotalOwed(draft.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owed != 220 {
		t.Errorf("totalOwed = %d, want 220", owed)
	}
}

func TestUpdate_RefusedFieldRollsBackEarlierOnes(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)

	err := l.Update(draft.Key, func() error {
		if err := l.SetDate(draft.Key, "2024-03-15"); err != nil {
			return err
		}
		return l.SetDiscount(draft.Key, -5)
	})
	if err == nil {
		t.Fatal("expected the batched update to be refused")
	}

	got, _ := l.Session(draft.Key)
	if got.Date != "2024-02-01" {
		t.Errorf("date = %q, want pre-update 2024-02-01", got.Date)
	}
	if got.Discount != 0 {
		t.Errorf("discount = %d, want 0", got.Discount)
	}
}

func TestUpdate_RollsBackManualBudgetToggle(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)
	l.AddLine(draft.Key, "Limpieza", 80, 1)

	err := l.Update(draft.Key, func() error {
		if err := l.SetManualBudget(draft.Key, true); err != nil {
			return err
		}
		if err := l.SetBudget(draft.Key, 500); err != nil {
			return err
		}
		return l.SetPayment(draft.Key, -1)
	})
	if err == nil {
		t.Fatal("expected the batched update to be refused")
	}

	got, _ := l.Session(draft.Key)
	if got.Budget != 80 {
		t.Errorf("budget = %d, want recomputed 80", got.Budget)
	}
	// manual mode must be off again, so direct budget writes are refused
	if err := l.SetBudget(draft.Key, 500); !errors.Is(err, ErrManualBudgetOff) {
		t.Errorf("expected ErrManualBudgetOff, got %v", err)
	}
}

func TestUpdate_AppliesAllFieldsOnSuccess(t *testing.T) {
	l := NewLedger(testPatient(), nil)
	draft, _ := l.NewDraft("2024-02-01", "Dolor", nil)

	err := l.Update(draft.Key, func() error {
		if err := l.SetDate(draft.Key, "2024-03-15"); err != nil {
			return err
		}
		return l.SetDiscount(draft.Key, 5)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := l.Session(draft.Key)
	if got.Date != "2024-03-15" || got.Discount != 5 {
		t.Errorf("update lost: date = %q discount = %d", got.Date, got.Discount)
	}
}
