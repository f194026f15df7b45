package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/internal/platform/metrics"
)

type Service struct {
	slots    SlotRepository
	appts    AppointmentRepository
	doctors  DoctorLookup
	patients PatientLookup
	tx       TxRunner
	locker   SlotLocker
	metrics  *metrics.Metrics
}

type Option func(*Service)

// WithLocker puts a short-lived hold in front of every booking.
func WithLocker(l SlotLocker) Option { return func(s *Service) { s.locker = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(slots SlotRepository, appts AppointmentRepository, doctors DoctorLookup, patients PatientLookup, tx TxRunner, opts ...Option) *Service {
	s := &Service{slots: slots, appts: appts, doctors: doctors, patients: patients, tx: tx}
	for _, o := range opts {
		o(s)
	}
	return s
}

// -- Slots --

func (s *Service) CreateSlot(ctx context.Context, in SlotInput) (*Slot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	slot := &Slot{
		DoctorID:    in.DoctorID,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		IsAvailable: true,
	}
	if in.IsAvailable != nil {
		slot.IsAvailable = *in.IsAvailable
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireDoctor(ctx, in.DoctorID); err != nil {
			return err
		}
		if err := s.rejectOverlap(ctx, slot.DoctorID, slot.StartTime, slot.EndTime, uuid.Nil); err != nil {
			return err
		}
		return s.slots.Create(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Service) ListSlots(ctx context.Context, limit, offset int) ([]*Slot, int, error) {
	return s.slots.List(ctx, limit, offset)
}

func (s *Service) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Slot, error) {
	return s.slots.ListByDoctor(ctx, doctorID)
}

func (s *Service) ListAvailableSlots(ctx context.Context, f AvailableFilter) ([]*Slot, error) {
	return s.slots.ListAvailable(ctx, f)
}

// UpdateSlot rewrites a slot's doctor, range and availability. A booked slot
// keeps its doctor and range.
func (s *Service) UpdateSlot(ctx context.Context, id uuid.UUID, in SlotInput) (*Slot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	start, end := in.StartTime.UTC(), in.EndTime.UTC()

	var slot *Slot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.slots.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.VersionID != 0 && in.VersionID != slot.VersionID {
			return apperr.Conflict("slot was modified concurrently")
		}
		appt, err := s.appointmentForSlot(ctx, slot.ID)
		if err != nil {
			return err
		}

		moved := slot.DoctorID != in.DoctorID || !slot.StartTime.Equal(start) || !slot.EndTime.Equal(end)
		if moved {
			if appt != nil {
				return apperr.InvalidState("cannot change the time or doctor of a booked slot")
			}
			if in.DoctorID != slot.DoctorID {
				if err := s.requireDoctor(ctx, in.DoctorID); err != nil {
					return err
				}
			}
			if err := s.rejectOverlap(ctx, in.DoctorID, start, end, slot.ID); err != nil {
				return err
			}
		}
		if in.IsAvailable != nil {
			if *in.IsAvailable && appt != nil && !appt.Status.Terminal() {
				return apperr.InvalidState("slot has an active appointment")
			}
			slot.IsAvailable = *in.IsAvailable
		}

		slot.DoctorID, slot.StartTime, slot.EndTime = in.DoctorID, start, end
		return s.slots.Update(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// SetSlotAvailability flips the bookable flag. It may never mark a slot
// available while it holds a live appointment.
func (s *Service) SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool) (*Slot, error) {
	var slot *Slot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.slots.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if slot.IsAvailable == available {
			return nil
		}
		if available {
			appt, err := s.appointmentForSlot(ctx, slot.ID)
			if err != nil {
				return err
			}
			if appt != nil && !appt.Status.Terminal() {
				return apperr.InvalidState("slot has an active appointment")
			}
		}
		slot.IsAvailable = available
		return s.slots.Update(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// DeleteSlot removes a slot that has never been booked.
func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.slots.GetByID(ctx, id); err != nil {
			return err
		}
		appt, err := s.appointmentForSlot(ctx, id)
		if err != nil {
			return err
		}
		if appt != nil {
			return apperr.Conflict(msgSlotHasAppt)
		}
		return s.slots.Delete(ctx, id)
	})
}

func (s *Service) requireDoctor(ctx context.Context, id uuid.UUID) error {
	ok, err := s.doctors.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("look up doctor: %w", err)
	}
	if !ok {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (s *Service) rejectOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	overlap, err := s.slots.HasOverlap(ctx, doctorID, start, end, exclude)
	if err != nil {
		return fmt.Errorf("check slot overlap: %w", err)
	}
	if overlap {
		return apperr.Conflict(msgSlotOverlap)
	}
	return nil
}

// appointmentForSlot returns the slot's appointment, or nil if it was never booked.
func (s *Service) appointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetBySlot(ctx, slotID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// -- Appointments --

// BookAppointment creates a Scheduled appointment and takes the slot in one
// transaction. Exactly one of several concurrent bookings for a slot succeeds;
// the others fail with a Conflict error.
func (s *Service) BookAppointment(ctx context.Context, actor auth.Actor, req BookRequest) (*Appointment, error) {
	start := time.Now()
	appt, err := s.book(ctx, actor, req)
	s.metrics.ObserveBooking(err, time.Since(start))
	return appt, err
}

func (s *Service) book(ctx context.Context, actor auth.Actor, req BookRequest) (*Appointment, error) {
	if req.SlotID == uuid.Nil {
		return nil, apperr.Validation("slotId is required")
	}
	if req.PatientID == uuid.Nil {
		if !actor.IsPatient() {
			return nil, apperr.Validation("patientId is required")
		}
		req.PatientID = actor.UserID
	}
	if actor.IsPatient() && req.PatientID != actor.UserID {
		return nil, apperr.Forbidden("patients may only book appointments for themselves")
	}
	if len(req.Reason) > MaxReasonLength {
		return nil, apperr.Validation("reason must be at most %d characters", MaxReasonLength)
	}

	if s.locker != nil {
		key := req.SlotID.String()
		token, ok, err := s.locker.TryLock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("acquire slot hold: %w", err)
		}
		if !ok {
			return nil, apperr.Conflict("slot is being booked")
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("slot_id", key).Msg("release slot hold")
			}
		}()
	}

	var appt *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		slot, err := s.slots.GetByID(ctx, req.SlotID)
		if err != nil {
			return err
		}
		ok, err := s.patients.IsPatient(ctx, req.PatientID)
		if err != nil {
			return fmt.Errorf("look up patient: %w", err)
		}
		if !ok {
			return apperr.NotFound("patient not found")
		}
		if !slot.IsAvailable {
			return apperr.Conflict("slot is not available")
		}
		existing, err := s.appointmentForSlot(ctx, slot.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(msgSlotBooked)
		}

		a := &Appointment{
			PatientID:       req.PatientID,
			SlotID:          slot.ID,
			DoctorID:        slot.DoctorID,
			AppointmentDate: slot.StartTime,
			Status:          StatusScheduled,
		}
		if req.Reason != "" {
			reason := req.Reason
			a.Reason = &reason
		}
		if err := s.appts.Create(ctx, a); err != nil {
			return err
		}
		slot.IsAvailable = false
		if err := s.slots.Update(ctx, slot); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", appt.SlotID.String()).
		Str("patient_id", appt.PatientID.String()).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, a.PatientID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.List(ctx, limit, offset)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID) ([]*Appointment, error) {
	if err := checkOwner(actor, patientID); err != nil {
		return nil, err
	}
	return s.appts.ListByPatient(ctx, patientID)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	return s.appts.ListByDoctor(ctx, doctorID)
}

// SetAppointmentStatus moves an appointment through its lifecycle. Entering
// Completed or Cancelled frees the slot in the same transaction.
func (s *Service) SetAppointmentStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if actor.IsPatient() {
		return nil, apperr.Forbidden("patients may not change appointment status")
	}
	return s.transition(ctx, id, func(a *Appointment) (AppointmentPlan, error) {
		return PlanAppointmentTransition(*a, to)
	})
}

// CancelAppointment cancels a Scheduled or Confirmed appointment. Cancelling
// an already cancelled appointment succeeds without writing.
func (s *Service) CancelAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, func(a *Appointment) (AppointmentPlan, error) {
		if err := checkOwner(actor, a.PatientID); err != nil {
			return AppointmentPlan{}, err
		}
		switch a.Status {
		case StatusCompleted:
			return AppointmentPlan{}, apperr.InvalidState("cannot cancel a completed appointment")
		case StatusCancelled:
			return AppointmentPlan{From: a.Status, To: a.Status, Noop: true}, nil
		}
		return PlanAppointmentTransition(*a, StatusCancelled)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, plan func(*Appointment) (AppointmentPlan, error)) (*Appointment, error) {
	var (
		appt *Appointment
		p    AppointmentPlan
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p, err = plan(appt); err != nil {
			return err
		}
		return ApplyPlan(ctx, s.appts, s.slots, appt, p)
	})
	if err != nil {
		return nil, err
	}
	if !p.Noop {
		s.metrics.ObserveAppointmentTransition(string(p.From), string(p.To))
		zerolog.Ctx(ctx).Info().
			Str("appointment_id", appt.ID.String()).
			Str("slot_id", appt.SlotID.String()).
			Str("from", string(p.From)).
			Str("to", string(p.To)).
			Bool("slot_freed", p.FreeSlot).
			Msg("appointment status changed")
	}
	return appt, nil
}

// checkOwner restricts Patient actors to their own records.
func checkOwner(actor auth.Actor, patientID uuid.UUID) error {
	if actor.IsPatient() && actor.UserID != patientID {
		return apperr.Forbidden("patients may only access their own appointments")
	}
	return nil
}
