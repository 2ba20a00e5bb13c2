package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a catalog entry does not exist.
var ErrNotFound = errors.New("catalog entry not found")

// Service validates catalog operations before they hit storage.
type Service struct {
	templates TemplateRepository
	lookups   LookupRepository
}

func NewService(templates TemplateRepository, lookups LookupRepository) *Service {
	return &Service{templates: templates, lookups: lookups}
}

func (s *Service) Templates(ctx context.Context, includeInactive bool) ([]ProcedureTemplate, error) {
	return s.templates.ListTemplates(ctx, includeInactive)
}

// ReplaceTemplates validates and persists a full price list, then returns
// the stored list so callers see the ids assigned on insert.
func (s *Service) ReplaceTemplates(ctx context.Context, templates []ProcedureTemplate) ([]ProcedureTemplate, error) {
	seen := make(map[string]struct{}, len(templates))
	for _, t := range templates {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("procedure template name must not be empty")
		}
		if t.UnitPrice < 0 {
			return nil, fmt.Errorf("procedure template %q: price must be non-negative, got %d", name, t.UnitPrice)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("procedure template %q appears twice", name)
		}
		seen[name] = struct{}{}
	}

	if err := s.templates.ReplaceTemplates(ctx, templates); err != nil {
		return nil, err
	}
	return s.templates.ListTemplates(ctx, false)
}

func (s *Service) Signers(ctx context.Context, includeInactive bool) ([]Signer, error) {
	return s.lookups.ListSigners(ctx, includeInactive)
}

func (s *Service) CreateSigner(ctx context.Context, name string) (*Signer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("signer name must not be empty")
	}
	return s.lookups.CreateSigner(ctx, name)
}

func (s *Service) SetSignerActive(ctx context.Context, id int64, active bool) error {
	return s.lookups.SetSignerActive(ctx, id, active)
}

func (s *Service) ReasonTypes(ctx context.Context, includeInactive bool) ([]ReasonType, error) {
	return s.lookups.ListReasonTypes(ctx, includeInactive)
}

func (s *Service) CreateReasonType(ctx context.Context, name string) (*ReasonType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("reason type name must not be empty")
	}
	return s.lookups.CreateReasonType(ctx, name)
}

func (s *Service) SetReasonTypeActive(ctx context.Context, id int64, active bool) error {
	return s.lookups.SetReasonTypeActive(ctx, id, active)
}

func (s *Service) PaymentMethods(ctx context.Context, includeInactive bool) ([]PaymentMethod, error) {
	return s.lookups.ListPaymentMethods(ctx, includeInactive)
}

func (s *Service) CreatePaymentMethod(ctx context.Context, name string) (*PaymentMethod, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("payment method name must not be empty")
	}
	return s.lookups.CreatePaymentMethod(ctx, name)
}

func (s *Service) SetPaymentMethodActive(ctx context.Context, id int64, active bool) error {
	return s.lookups.SetPaymentMethodActive(ctx, id, active)
}
