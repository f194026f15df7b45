package billing

import (
	"strings"

	"github.com/clinicbook/clinic/internal/domain/scheduling"
	"github.com/clinicbook/clinic/internal/platform/apperr"
)

var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

// PaymentPlan is the set of writes a payment status change requires.
type PaymentPlan struct {
	From PaymentStatus
	To   PaymentStatus
	// Appointment is the cascaded appointment change, nil when none applies.
	Appointment *scheduling.AppointmentPlan
	// Skipped holds the reason a cascade was wanted but is illegal for the
	// appointment's current status. The payment write still goes ahead.
	Skipped error
}

// cascadeTarget is the appointment status a payment status implies.
func cascadeTarget(to PaymentStatus, cancelOnFailure bool) (scheduling.AppointmentStatus, bool) {
	switch to {
	case PaymentCompleted:
		return scheduling.StatusConfirmed, true
	case PaymentFailed:
		return scheduling.StatusCancelled, cancelOnFailure
	case PaymentRefunded:
		return scheduling.StatusCancelled, true
	}
	return "", false
}

// PlanPaymentTransition decides whether p may move to `to` and which
// appointment change follows from it. It performs no I/O.
func PlanPaymentTransition(p Payment, appt scheduling.Appointment, to PaymentStatus, cancelOnFailure bool) (PaymentPlan, error) {
	plan := PaymentPlan{From: p.Status, To: to}
	if !to.Valid() {
		return plan, apperr.Validation("invalid payment status %q", to)
	}
	if p.Status == to {
		return plan, apperr.InvalidState("payment is already %s", strings.ToLower(string(to)))
	}
	legal := false
	for _, next := range allowedTransitions[p.Status] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return plan, apperr.InvalidState("cannot change payment status from %s to %s", p.Status, to)
	}

	target, ok := cascadeTarget(to, cancelOnFailure)
	if !ok {
		return plan, nil
	}
	ap, err := scheduling.PlanAppointmentTransition(appt, target)
	if err != nil {
		plan.Skipped = err
		return plan, nil
	}
	if !ap.Noop {
		plan.Appointment = &ap
	}
	return plan, nil
}
