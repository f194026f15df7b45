package doctor

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// Update is conditioned on d.VersionID and bumps it.
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Doctor, error)
	SearchBySpecialization(ctx context.Context, term string) ([]*Doctor, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	HasSlots(ctx context.Context, id uuid.UUID) (bool, error)
	ConsultationFee(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}
