package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Input carries the caller-editable patient fields.
type Input struct {
	FullName       string  `json:"fullName"`
	DocID          string  `json:"docId"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	EmergencyPhone string  `json:"emergencyPhone"`
	DateOfBirth    *string `json:"dateOfBirth"`
	Anamnesis      string  `json:"anamnesis"`
	AllergyDetail  string  `json:"allergyDetail"`
}

func (in *Input) validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return fmt.Errorf("patient name must not be empty")
	}
	if in.DateOfBirth != nil {
		if _, err := time.Parse("2006-01-02", *in.DateOfBirth); err != nil {
			return fmt.Errorf("invalid date of birth %q, want YYYY-MM-DD", *in.DateOfBirth)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &Patient{
		ID:             uuid.New(),
		FullName:       in.FullName,
		DocID:          in.DocID,
		Phone:          in.Phone,
		Email:          in.Email,
		EmergencyPhone: in.EmergencyPhone,
		DateOfBirth:    in.DateOfBirth,
		Anamnesis:      in.Anamnesis,
		AllergyDetail:  in.AllergyDetail,
		Status:         StatusActive,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Archived() {
		return nil, fmt.Errorf("patient %s is archived", id)
	}

	p.FullName = in.FullName
	p.DocID = in.DocID
	p.Phone = in.Phone
	p.Email = in.Email
	p.EmergencyPhone = in.EmergencyPhone
	p.DateOfBirth = in.DateOfBirth
	p.Anamnesis = in.Anamnesis
	p.AllergyDetail = in.AllergyDetail

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Archive hides a patient from listings. The record and its sessions
// remain; there is no hard delete.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, StatusArchived)
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, StatusActive)
}

func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]*Patient, int, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repo.Search(ctx, filter)
}
