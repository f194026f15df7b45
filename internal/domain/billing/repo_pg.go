package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/db"
)

const msgPaymentExists = "payment already exists for this appointment"

type paymentRepoPG struct{ db db.Querier }

func NewPaymentRepoPG(q db.Querier) PaymentRepository { return &paymentRepoPG{db: q} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.db) }

const paymentCols = `id, appointment_id, amount, payment_method, transaction_id, status,
	payment_date, version_id, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var status string
	if err := row.Scan(&p.ID, &p.AppointmentID, &p.Amount, &p.PaymentMethod, &p.TransactionID, &status,
		&p.PaymentDate, &p.VersionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("payment not found")
		}
		return nil, err
	}
	p.Status = PaymentStatus(status)
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount, payment_method, transaction_id, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING version_id, created_at, updated_at`,
		p.ID, p.AppointmentID, p.Amount, p.PaymentMethod, p.TransactionID, string(p.Status), p.PaymentDate,
	).Scan(&p.VersionID, &p.CreatedAt, &p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, msgPaymentExists)
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "appointment not found")
	case db.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "amount must not be negative")
	}
	return fmt.Errorf("insert payment: %w", err)
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
}

func (r *paymentRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE appointment_id = $1`, appointmentID))
}

func (r *paymentRepoPG) UpdateStatus(ctx context.Context, p *Payment) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE payments SET status = $3, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		p.ID, p.VersionID, string(p.Status),
	).Scan(&p.VersionID, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return db.StaleWrite(ctx, q, "payments", p.ID, "payment")
	}
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *paymentRepoPG) List(ctx context.Context, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payments ORDER BY payment_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *paymentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("payment not found")
	}
	return nil
}
