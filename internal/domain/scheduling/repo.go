package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotRepository persists slots. Update and Delete are conditioned on the
// version the caller read; a stale version yields a Conflict error.
type SlotRepository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	Update(ctx context.Context, s *Slot) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Slot, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Slot, error)
	ListAvailable(ctx context.Context, f AvailableFilter) ([]*Slot, error)
	HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetBySlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error)
}

// DoctorLookup and PatientLookup resolve references owned by other domains.
type DoctorLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type PatientLookup interface {
	IsPatient(ctx context.Context, userID uuid.UUID) (bool, error)
}

// TxRunner runs fn inside one transaction; repositories called with the
// context passed to fn join it. *db.TxRunner implements it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SlotLocker is an optional short-lived hold taken before booking.
type SlotLocker interface {
	TryLock(ctx context.Context, key string) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
