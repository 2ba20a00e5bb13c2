package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontia/odontia/internal/domain/chart"
	"github.com/odontia/odontia/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository { return &sessionRepoPG{pool: pool} }

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, patient_id, session_date, reason_type, reason_detail,
	diagnosis_text, clinical_notes, signer, budget, discount, payment,
	balance, cumulative_balance, payment_method_id, payment_notes, tooth_dx_json`

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s       Session
		id      int64
		date    time.Time
		toothDx []byte
	)
	err := row.Scan(&id, &s.PatientID, &date, &s.ReasonType, &s.ReasonDetail,
		&s.DiagnosisText, &s.ClinicalNotes, &s.Signer, &s.Budget, &s.Discount, &s.Payment,
		&s.Balance, &s.CumulativeBalance, &s.PaymentMethodID, &s.PaymentNotes, &toothDx)
	if err != nil {
		return nil, err
	}
	s.Key = SavedKey(id)
	s.Date = date.Format("2006-01-02")
	if len(toothDx) > 0 {
		var dx chart.ToothDx
		if err := json.Unmarshal(toothDx, &dx); err != nil {
			return nil, fmt.Errorf("decode tooth chart for session %d: %w", id, err)
		}
		s.ToothDx = dx
	}
	return &s, nil
}

func (r *sessionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	q := r.conn(ctx)

	rows, err := q.Query(ctx, `
		SELECT `+sessionCols+`
		FROM sessions
		WHERE patient_id = $1
		ORDER BY session_date, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	byID := map[int64]*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
		byID[s.Key.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	lineRows, err := q.Query(ctx, `
		SELECT l.id, l.session_id, l.name, l.unit_price, l.quantity, l.subtotal,
		       l.is_active, l.template_id, l.tooth_number, l.notes
		FROM session_lines l
		JOIN sessions s ON s.id = l.session_id
		WHERE s.patient_id = $1
		ORDER BY l.session_id, l.position, l.id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query session lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var (
			line      ProcedureLine
			sessionID int64
		)
		err := lineRows.Scan(&line.ID, &sessionID, &line.Name, &line.UnitPrice, &line.Quantity,
			&line.Subtotal, &line.Active, &line.TemplateID, &line.ToothNumber, &line.Notes)
		if err != nil {
			return nil, fmt.Errorf("scan session line: %w", err)
		}
		if s, ok := byID[sessionID]; ok {
			s.Lines = append(s.Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session lines: %w", err)
	}

	return sessions, nil
}

// SaveSessions persists every draft in one transaction. The server is the
// source of truth for the figures: budget is recomputed from the active
// lines unless the draft carries a manual budget, balance is rederived,
// and the cumulative balance is frozen from the saved rows that precede
// the new one.
func (r *sessionRepoPG) SaveSessions(ctx context.Context, patientID uuid.UUID, drafts []*Session) ([]*Session, error) {
	var saved []*Session

	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		for _, draft := range drafts {
			s, err := r.insertSession(ctx, patientID, draft)
			if err != nil {
				return err
			}
			saved = append(saved, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *sessionRepoPG) insertSession(ctx context.Context, patientID uuid.UUID, draft *Session) (*Session, error) {
	q := r.conn(ctx)

	s := draft.Clone()
	s.PatientID = patientID
	Recompute(s, s.ManualBudget)

	toothDx, err := json.Marshal(s.ToothDx)
	if err != nil {
		return nil, fmt.Errorf("encode tooth chart: %w", err)
	}
	if s.ToothDx == nil {
		toothDx = nil
	}

	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO sessions (patient_id, session_date, reason_type, reason_detail,
			diagnosis_text, clinical_notes, signer, budget, discount, payment,
			balance, cumulative_balance, payment_method_id, payment_notes, tooth_dx_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,$13,$14)
		RETURNING id`,
		patientID, s.Date, s.ReasonType, s.ReasonDetail,
		s.DiagnosisText, s.ClinicalNotes, s.Signer, s.Budget, s.Discount, s.Payment,
		s.Balance, s.PaymentMethodID, s.PaymentNotes, toothDx).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	for i, line := range s.Lines {
		err = q.QueryRow(ctx, `
			INSERT INTO session_lines (session_id, name, unit_price, quantity, subtotal,
				is_active, template_id, tooth_number, notes, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id`,
			id, line.Name, line.UnitPrice, line.Quantity, line.Subtotal,
			line.Active, line.TemplateID, line.ToothNumber, line.Notes, i).Scan(&s.Lines[i].ID)
		if err != nil {
			return nil, fmt.Errorf("insert session line: %w", err)
		}
	}

	// Freeze the running balance: everything saved for this patient before
	// this row, plus this row's own balance.
	var previous int64
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM sessions
		WHERE patient_id = $1 AND id < $2`, patientID, id).Scan(&previous)
	if err != nil {
		return nil, fmt.Errorf("sum prior balances: %w", err)
	}
	cumulative := previous + s.Balance
	if _, err := q.Exec(ctx,
		`UPDATE sessions SET cumulative_balance = $1 WHERE id = $2`, cumulative, id); err != nil {
		return nil, fmt.Errorf("update cumulative balance: %w", err)
	}

	s.Key = SavedKey(id)
	s.CumulativeBalance = cumulative
	s.ManualBudget = false
	return s, nil
}
