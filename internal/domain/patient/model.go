// Package patient manages the clinic's patient records. Records are
// archived rather than deleted so a patient's ledger is never orphaned.
package patient

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"fullName"`
	DocID          string    `db:"doc_id" json:"docId"`
	Phone          string    `db:"phone" json:"phone"`
	Email          string    `db:"email" json:"email"`
	EmergencyPhone string    `db:"emergency_phone" json:"emergencyPhone"`
	DateOfBirth    *string   `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Anamnesis      string    `db:"anamnesis" json:"anamnesis"`
	AllergyDetail  string    `db:"allergy_detail" json:"allergyDetail"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

func (p *Patient) Archived() bool { return p.Status == StatusArchived }
