package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateDoctor(ctx context.Context, in Input) (*Doctor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d := &Doctor{IsAvailable: true}
	in.apply(d)
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("doctor_id", d.ID.String()).Str("specialization", d.Specialization).Msg("doctor created")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateDoctor replaces the writable fields. A non-zero in.VersionID must
// match the stored version.
func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in Input) (*Doctor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.VersionID != 0 && in.VersionID != d.VersionID {
		return nil, apperr.Conflict("doctor was modified concurrently")
	}
	in.apply(d)
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	has, err := s.repo.HasSlots(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return apperr.Conflict(msgDoctorHasSlots)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.repo.List(ctx)
}

// SearchBySpecialization matches case-insensitively on any part of the
// specialization. A blank term lists everyone.
func (s *Service) SearchBySpecialization(ctx context.Context, term string) ([]*Doctor, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.repo.List(ctx)
	}
	return s.repo.SearchBySpecialization(ctx, term)
}

// Exists lets slot creation check the owning doctor.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// ConsultationFee is the default charge for an appointment with the doctor.
func (s *Service) ConsultationFee(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	return s.repo.ConsultationFee(ctx, id)
}
