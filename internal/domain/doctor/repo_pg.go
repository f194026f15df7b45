package doctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/db"
)

const msgDoctorHasSlots = "cannot delete doctor with existing slots"

type repoPG struct{ db db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{db: q} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.db) }

const doctorCols = `id, user_id, full_name, specialization, email, COALESCE(phone_number, ''),
	consultation_fee, is_available, version_id, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialization, &d.Email, &d.PhoneNumber,
		&d.ConsultationFee, &d.IsAvailable, &d.VersionID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("doctor not found")
		}
		return nil, err
	}
	return &d, nil
}

func collectDoctors(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()
	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeError(err error) error {
	switch {
	case db.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "consultationFee must not be negative")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "user not found")
	}
	return err
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, full_name, specialization, email, phone_number, consultation_fee, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING version_id, created_at, updated_at`,
		d.ID, d.UserID, d.FullName, d.Specialization, d.Email, nullable(d.PhoneNumber), d.ConsultationFee, d.IsAvailable,
	).Scan(&d.VersionID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", writeError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE doctors SET user_id = $3, full_name = $4, specialization = $5, email = $6, phone_number = $7,
			consultation_fee = $8, is_available = $9, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		d.ID, d.VersionID, d.UserID, d.FullName, d.Specialization, d.Email, nullable(d.PhoneNumber),
		d.ConsultationFee, d.IsAvailable,
	).Scan(&d.VersionID, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return db.StaleWrite(ctx, q, "doctors", d.ID, "doctor")
	}
	if err != nil {
		return fmt.Errorf("update doctor: %w", writeError(err))
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, msgDoctorHasSlots)
	}
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY full_name`)
	if err != nil {
		return nil, err
	}
	return collectDoctors(rows)
}

func (r *repoPG) SearchBySpecialization(ctx context.Context, term string) ([]*Doctor, error) {
	pattern := "%" + escapeLike(term) + "%"
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE specialization ILIKE $1 ORDER BY full_name`, pattern)
	if err != nil {
		return nil, err
	}
	return collectDoctors(rows)
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) HasSlots(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE doctor_id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) ConsultationFee(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `SELECT consultation_fee FROM doctors WHERE id = $1`, id).Scan(&fee)
	if db.IsNoRows(err) {
		return decimal.Zero, apperr.NotFound("doctor not found")
	}
	return fee, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
