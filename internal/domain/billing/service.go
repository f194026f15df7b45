package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic/internal/domain/scheduling"
	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/internal/platform/metrics"
)

type Service struct {
	payments PaymentRepository
	appts    scheduling.AppointmentRepository
	slots    scheduling.SlotRepository
	fees     FeeLookup
	tx       scheduling.TxRunner
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(payments PaymentRepository, appts scheduling.AppointmentRepository, slots scheduling.SlotRepository,
	fees FeeLookup, tx scheduling.TxRunner, opts ...Option) *Service {
	s := &Service{payments: payments, appts: appts, slots: slots, fees: fees, tx: tx, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreatePayment records a Pending payment for an appointment that has none.
func (s *Service) CreatePayment(ctx context.Context, actor auth.Actor, req PaymentRequest) (*Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var p *Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetByID(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if err := checkOwner(actor, appt.PatientID); err != nil {
			return err
		}
		if _, err := s.payments.GetByAppointment(ctx, appt.ID); err == nil {
			return apperr.Conflict(msgPaymentExists)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		amount, ok := req.explicitAmount()
		if !ok {
			if amount, err = s.fees.ConsultationFee(ctx, appt.DoctorID); err != nil {
				return fmt.Errorf("resolve consultation fee: %w", err)
			}
		}

		p = &Payment{
			AppointmentID: appt.ID,
			Amount:        amount,
			PaymentMethod: req.PaymentMethod,
			Status:        PaymentPending,
			PaymentDate:   s.now().UTC(),
		}
		if req.TransactionID != "" {
			txID := req.TransactionID
			p.TransactionID = &txID
		}
		return s.payments.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("payment_id", p.ID.String()).
		Str("appointment_id", p.AppointmentID.String()).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("payment created")
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkPaymentOwner(ctx, actor, p.AppointmentID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPaymentByAppointment(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (*Payment, error) {
	if err := s.checkPaymentOwner(ctx, actor, appointmentID); err != nil {
		return nil, err
	}
	return s.payments.GetByAppointment(ctx, appointmentID)
}

func (s *Service) ListPayments(ctx context.Context, limit, offset int) ([]*Payment, int, error) {
	return s.payments.List(ctx, limit, offset)
}

// DeletePayment removes the payment row only; the appointment is untouched.
func (s *Service) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return s.payments.Delete(ctx, id)
}

// SetPaymentStatus moves a payment through its lifecycle and applies the
// appointment cascade in the same transaction.
func (s *Service) SetPaymentStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, to PaymentStatus, cancelOnFailure bool) (*Payment, error) {
	if actor.IsPatient() {
		return nil, apperr.Forbidden("patients may not change payment status")
	}
	return s.transition(ctx, id, func(p *Payment, appt *scheduling.Appointment) (PaymentPlan, error) {
		return PlanPaymentTransition(*p, *appt, to, cancelOnFailure)
	})
}

// Refund reverses a Completed payment, cancels the appointment and frees its slot.
func (s *Service) Refund(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.transition(ctx, id, func(p *Payment, appt *scheduling.Appointment) (PaymentPlan, error) {
		if p.Status != PaymentCompleted {
			return PaymentPlan{}, apperr.InvalidState("can only refund completed payments")
		}
		return PlanPaymentTransition(*p, *appt, PaymentRefunded, false)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID,
	plan func(*Payment, *scheduling.Appointment) (PaymentPlan, error)) (*Payment, error) {
	var (
		p    *Payment
		appt *scheduling.Appointment
		pp   PaymentPlan
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.payments.GetByID(ctx, id); err != nil {
			return err
		}
		if appt, err = s.appts.GetByID(ctx, p.AppointmentID); err != nil {
			return err
		}
		if pp, err = plan(p, appt); err != nil {
			return err
		}
		p.Status = pp.To
		if err := s.payments.UpdateStatus(ctx, p); err != nil {
			return err
		}
		if pp.Appointment == nil {
			return nil
		}
		return scheduling.ApplyPlan(ctx, s.appts, s.slots, appt, *pp.Appointment)
	})
	if err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx)
	s.metrics.ObservePaymentTransition(string(pp.From), string(pp.To))
	log.Info().
		Str("payment_id", p.ID.String()).
		Str("from", string(pp.From)).
		Str("to", string(pp.To)).
		Msg("payment status changed")
	if ap := pp.Appointment; ap != nil {
		s.metrics.ObserveAppointmentTransition(string(ap.From), string(ap.To))
		log.Info().
			Str("appointment_id", appt.ID.String()).
			Str("slot_id", appt.SlotID.String()).
			Str("from", string(ap.From)).
			Str("to", string(ap.To)).
			Bool("slot_freed", ap.FreeSlot).
			Msg("appointment status changed")
	}
	if pp.Skipped != nil {
		log.Warn().Err(pp.Skipped).
			Str("payment_id", p.ID.String()).
			Str("appointment_id", appt.ID.String()).
			Msg("appointment cascade skipped")
	}
	return p, nil
}

func (s *Service) checkPaymentOwner(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) error {
	if !actor.IsPatient() {
		return nil
	}
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	return checkOwner(actor, appt.PatientID)
}

func checkOwner(actor auth.Actor, patientID uuid.UUID) error {
	if actor.IsPatient() && actor.UserID != patientID {
		return apperr.Forbidden("patients may only access payments for their own appointments")
	}
	return nil
}
