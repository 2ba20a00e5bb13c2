package patient

import (
	"context"

	"github.com/google/uuid"
)

// SearchFilter narrows a patient listing. Query matches name or document
// id, case-insensitively.
type SearchFilter struct {
	Query           string
	IncludeArchived bool
	Limit           int
	Offset          int
}

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Search(ctx context.Context, filter SearchFilter) ([]*Patient, int, error)
}
