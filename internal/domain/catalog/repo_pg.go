package catalog

import (
	"context"
	"fmt"

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

// NewRepoPG returns a Postgres-backed catalog store. The same value
// serves both repository interfaces.
func NewRepoPG(pool *pgxpool.Pool) *repoPG { return &repoPG{pool: pool} }

var (
	_ TemplateRepository = (*repoPG)(nil)
	_ LookupRepository   = (*repoPG)(nil)
)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) ListTemplates(ctx context.Context, includeInactive bool) ([]ProcedureTemplate, error) {
	q := r.conn(ctx)

	sql := `SELECT id, name, unit_price, is_active FROM procedure_templates`
	if !includeInactive {
		sql += ` WHERE is_active`
	}
	sql += ` ORDER BY name, id`

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query procedure templates: %w", err)
	}
	defer rows.Close()

	var out []ProcedureTemplate
	for rows.Next() {
		var t ProcedureTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.UnitPrice, &t.Active); err != nil {
			return nil, fmt.Errorf("scan procedure template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate procedure templates: %w", err)
	}
	return out, nil
}

func (r *repoPG) ReplaceTemplates(ctx context.Context, templates []ProcedureTemplate) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)

		if _, err := q.Exec(ctx, `UPDATE procedure_templates SET is_active = FALSE`); err != nil {
			return fmt.Errorf("deactivate procedure templates: %w", err)
		}

		for _, t := range templates {
			if t.ID != 0 {
				tag, err := q.Exec(ctx, `
					UPDATE procedure_templates
					SET name = $1, unit_price = $2, is_active = TRUE
					WHERE id = $3`, t.Name, t.UnitPrice, t.ID)
				if err != nil {
					return fmt.Errorf("update procedure template %d: %w", t.ID, err)
				}
				if tag.RowsAffected() > 0 {
					continue
				}
				// stale id from a concurrent purge, fall through to name match
			}

			var existing int64
			err := q.QueryRow(ctx,
				`SELECT id FROM procedure_templates WHERE name = $1`, t.Name).Scan(&existing)
			switch {
			case err == nil:
				if _, err := q.Exec(ctx, `
					UPDATE procedure_templates
					SET unit_price = $1, is_active = TRUE
					WHERE id = $2`, t.UnitPrice, existing); err != nil {
					return fmt.Errorf("reprice procedure template %q: %w", t.Name, err)
				}
			case err == pgx.ErrNoRows:
				if _, err := q.Exec(ctx, `
					INSERT INTO procedure_templates (name, unit_price, is_active)
					VALUES ($1, $2, TRUE)`, t.Name, t.UnitPrice); err != nil {
					return fmt.Errorf("insert procedure template %q: %w", t.Name, err)
				}
			default:
				return fmt.Errorf("match procedure template %q: %w", t.Name, err)
			}
		}

		// Deactivated entries kept only while session lines still point at them.
		if _, err := q.Exec(ctx, `
			DELETE FROM procedure_templates t
			WHERE NOT t.is_active
			  AND NOT EXISTS (SELECT 1 FROM session_lines l WHERE l.template_id = t.id)`); err != nil {
			return fmt.Errorf("purge unreferenced procedure templates: %w", err)
		}
		return nil
	})
}

func (r *repoPG) ListSigners(ctx context.Context, includeInactive bool) ([]Signer, error) {
	rows, err := r.lookupRows(ctx, "signers", includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Signer
	for rows.Next() {
		var s Signer
		if err := rows.Scan(&s.ID, &s.Name, &s.Active); err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateSigner(ctx context.Context, name string) (*Signer, error) {
	s := Signer{Name: name, Active: true}
	if err := r.insertLookup(ctx, "signers", name, &s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) SetSignerActive(ctx context.Context, id int64, active bool) error {
	return r.setLookupActive(ctx, "signers", id, active)
}

func (r *repoPG) ListReasonTypes(ctx context.Context, includeInactive bool) ([]ReasonType, error) {
	rows, err := r.lookupRows(ctx, "reason_types", includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReasonType
	for rows.Next() {
		var rt ReasonType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Active); err != nil {
			return nil, fmt.Errorf("scan reason type: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateReasonType(ctx context.Context, name string) (*ReasonType, error) {
	rt := ReasonType{Name: name, Active: true}
	if err := r.insertLookup(ctx, "reason_types", name, &rt.ID); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *repoPG) SetReasonTypeActive(ctx context.Context, id int64, active bool) error {
	return r.setLookupActive(ctx, "reason_types", id, active)
}

func (r *repoPG) ListPaymentMethods(ctx context.Context, includeInactive bool) ([]PaymentMethod, error) {
	rows, err := r.lookupRows(ctx, "payment_methods", includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) CreatePaymentMethod(ctx context.Context, name string) (*PaymentMethod, error) {
	m := PaymentMethod{Name: name, Active: true}
	if err := r.insertLookup(ctx, "payment_methods", name, &m.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) SetPaymentMethodActive(ctx context.Context, id int64, active bool) error {
	return r.setLookupActive(ctx, "payment_methods", id, active)
}

// The three lookup tables share a shape, so the plumbing is shared too.
// Table names are compile-time constants at every call site, never input.

func (r *repoPG) lookupRows(ctx context.Context, table string, includeInactive bool) (pgx.Rows, error) {
	q := r.conn(ctx)
	sql := `SELECT id, name, is_active FROM ` + table
	if !includeInactive {
		sql += ` WHERE is_active`
	}
	sql += ` ORDER BY name, id`

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}

func (r *repoPG) insertLookup(ctx context.Context, table, name string, id *int64) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx,
		`INSERT INTO `+table+` (name, is_active) VALUES ($1, TRUE) RETURNING id`, name).Scan(id)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (r *repoPG) setLookupActive(ctx context.Context, table string, id int64, active bool) error {
	q := r.conn(ctx)
	tag, err := q.Exec(ctx,
		`UPDATE `+table+` SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
