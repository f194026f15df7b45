package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentRepository interface {
	// Create fails with a Conflict when the appointment already has a payment.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	// UpdateStatus is conditioned on p.VersionID and bumps it.
	UpdateStatus(ctx context.Context, p *Payment) error
	List(ctx context.Context, limit, offset int) ([]*Payment, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FeeLookup resolves a doctor's consultation fee.
type FeeLookup interface {
	ConsultationFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error)
}
