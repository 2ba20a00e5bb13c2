package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.patients[p.ID] = &cp
	p.CreatedAt = cp.CreatedAt
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	m.patients[p.ID] = &cp
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *mockPatientRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	p, ok := m.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, filter SearchFilter) ([]*Patient, int, error) {
	var matched []*Patient
	for _, p := range m.patients {
		if !filter.IncludeArchived && p.Archived() {
			continue
		}
		if filter.Query != "" {
			q := strings.ToLower(filter.Query)
			if !strings.Contains(strings.ToLower(p.FullName), q) &&
				!strings.Contains(strings.ToLower(p.DocID), q) {
				continue
			}
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].FullName < matched[j].FullName })

	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func TestCreate_Defaults(t *testing.T) {
	svc := NewService(newMockPatientRepo())

	p, err := svc.Create(context.Background(), Input{FullName: "  Ana Torres  ", DocID: "V-1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FullName != "Ana Torres" {
		t.Errorf("name = %q, want trimmed", p.FullName)
	}
	if p.Status != StatusActive {
		t.Errorf("status = %q, want %q", p.Status, StatusActive)
	}
	if p.ID == uuid.Nil {
		t.Error("expected generated id")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, Input{FullName: "   "}); err == nil {
		t.Error("expected error for blank name")
	}
	dob := "31-12-1990"
	if _, err := svc.Create(ctx, Input{FullName: "Ana", DateOfBirth: &dob}); err == nil {
		t.Error("expected error for malformed date of birth")
	}
}

func TestUpdate_ArchivedRejected(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, Input{FullName: "Ana Torres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Archive(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Update(ctx, p.ID, Input{FullName: "Ana T."}); err == nil {
		t.Error("expected error updating an archived patient")
	}
}

func TestArchive_HidesFromDefaultSearch(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	ana, _ := svc.Create(ctx, Input{FullName: "Ana Torres"})
	svc.Create(ctx, Input{FullName: "Luis Mora"})

	if err := svc.Archive(ctx, ana.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, total, err := svc.Search(ctx, SearchFilter{Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(active) != 1 || active[0].FullName != "Luis Mora" {
		t.Fatalf("active search = %+v (total %d), want only Luis Mora", active, total)
	}

	all, total, err := svc.Search(ctx, SearchFilter{Limit: 20, IncludeArchived: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected archived patient retained, got %d", total)
	}

	// the record itself is still retrievable
	got, err := svc.Get(ctx, ana.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Archived() {
		t.Error("archived patient reports active")
	}
}

func TestRestore(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, _ := svc.Create(ctx, Input{FullName: "Ana Torres"})
	svc.Archive(ctx, p.ID)
	if err := svc.Restore(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.Get(ctx, p.ID)
	if got.Archived() {
		t.Error("restored patient still archived")
	}
}

func TestSearch_QueryMatchesNameAndDocID(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)
	ctx := context.Background()

	svc.Create(ctx, Input{FullName: "Ana Torres", DocID: "V-1234"})
	svc.Create(ctx, Input{FullName: "Luis Mora", DocID: "V-5678"})

	byName, total, _ := svc.Search(ctx, SearchFilter{Query: "torres", Limit: 20})
	if total != 1 || byName[0].FullName != "Ana Torres" {
		t.Errorf("name search = %+v (total %d)", byName, total)
	}

	byDoc, total, _ := svc.Search(ctx, SearchFilter{Query: "5678", Limit: 20})
	if total != 1 || byDoc[0].FullName != "Luis Mora" {
		t.Errorf("doc search = %+v (total %d)", byDoc, total)
	}
}

func TestGet_Unknown(t *testing.T) {
	svc := NewService(newMockPatientRepo())
	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
