package catalog

import "context"

// TemplateRepository persists the procedure price list.
type TemplateRepository interface {
	ListTemplates(ctx context.Context, includeInactive bool) ([]ProcedureTemplate, error)
	// ReplaceTemplates synchronizes the price list with the given set in
	// one transaction: entries carrying a known id are updated, entries
	// with id 0 are matched by name or inserted, and everything absent
	// from the set is deactivated. Deactivated entries no session line
	// references are removed outright.
	ReplaceTemplates(ctx context.Context, templates []ProcedureTemplate) error
}

// LookupRepository persists the small configurable lists.
type LookupRepository interface {
	ListSigners(ctx context.Context, includeInactive bool) ([]Signer, error)
	CreateSigner(ctx context.Context, name string) (*Signer, error)
	SetSignerActive(ctx context.Context, id int64, active bool) error

	ListReasonTypes(ctx context.Context, includeInactive bool) ([]ReasonType, error)
	CreateReasonType(ctx context.Context, name string) (*ReasonType, error)
	SetReasonTypeActive(ctx context.Context, id int64, active bool) error

	ListPaymentMethods(ctx context.Context, includeInactive bool) ([]PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, name string) (*PaymentMethod, error)
	SetPaymentMethodActive(ctx context.Context, id int64, active bool) error
}
