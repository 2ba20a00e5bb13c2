package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontia/odontia/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, full_name, doc_id, phone, email, emergency_phone,
	date_of_birth, anamnesis, allergy_detail, status, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.DocID, &p.Phone, &p.Email, &p.EmergencyPhone,
		&p.DateOfBirth, &p.Anamnesis, &p.AllergyDetail, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	q := r.conn(ctx)

	err := q.QueryRow(ctx, `
		INSERT INTO patients (id, full_name, doc_id, phone, email, emergency_phone,
			date_of_birth, anamnesis, allergy_detail, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.DocID, p.Phone, p.Email, p.EmergencyPhone,
		p.DateOfBirth, p.Anamnesis, p.AllergyDetail, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q := r.conn(ctx)

	p, err := scanPatient(q.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	q := r.conn(ctx)

	err := q.QueryRow(ctx, `
		UPDATE patients
		SET full_name = $1, doc_id = $2, phone = $3, email = $4, emergency_phone = $5,
			date_of_birth = $6, anamnesis = $7, allergy_detail = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`,
		p.FullName, p.DocID, p.Phone, p.Email, p.EmergencyPhone,
		p.DateOfBirth, p.Anamnesis, p.AllergyDetail, p.ID).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	q := r.conn(ctx)

	tag, err := q.Exec(ctx,
		`UPDATE patients SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, filter SearchFilter) ([]*Patient, int, error) {
	q := r.conn(ctx)

	where := ` WHERE 1=1`
	args := []interface{}{}
	if !filter.IncludeArchived {
		where += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, StatusActive)
	}
	if filter.Query != "" {
		where += fmt.Sprintf(` AND (full_name ILIKE $%d OR doc_id ILIKE $%d)`, len(args)+1, len(args)+1)
		args = append(args, "%"+filter.Query+"%")
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	sql := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY full_name, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	return out, total, nil
}
