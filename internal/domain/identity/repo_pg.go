package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/internal/platform/db"
)

type userRepoPG struct{ db db.Querier }

func NewUserRepoPG(q db.Querier) UserRepository { return &userRepoPG{db: q} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.db) }

const userCols = `id, email, password_hash, first_name, last_name, COALESCE(phone_number, ''), role, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &role, &u.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	var phone *string
	if u.PhoneNumber != "" {
		phone = &u.PhoneNumber
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone_number, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, phone, string(u.Role),
	).Scan(&u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "email is already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, normalizeEmail(email)))
}

func (r *userRepoPG) IsPatient(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = 'Patient')`, id).Scan(&ok)
	return ok, err
}
