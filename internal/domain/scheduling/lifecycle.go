package scheduling

import (
	"context"
	"strings"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

// allowedTransitions lists the legal non-identity moves. Completed and
// Cancelled have no entries.
var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// AppointmentPlan is the set of writes a status change requires.
type AppointmentPlan struct {
	From AppointmentStatus
	To   AppointmentStatus
	// FreeSlot marks the slot available again in the same transaction.
	FreeSlot bool
	// Noop is set when the appointment already has the target status.
	Noop bool
}

// PlanAppointmentTransition decides whether current may move to `to` and what
// must be written. It performs no I/O.
func PlanAppointmentTransition(current Appointment, to AppointmentStatus) (AppointmentPlan, error) {
	plan := AppointmentPlan{From: current.Status, To: to}
	if !to.Valid() {
		return plan, apperr.Validation("invalid appointment status %q", to)
	}
	if current.Status.Terminal() {
		return plan, apperr.InvalidState("cannot change status of a %s appointment", strings.ToLower(string(current.Status)))
	}
	if current.Status == to {
		plan.Noop = true
		return plan, nil
	}
	for _, next := range allowedTransitions[current.Status] {
		if next == to {
			plan.FreeSlot = to.Terminal()
			return plan, nil
		}
	}
	return plan, apperr.InvalidState("cannot change appointment status from %s to %s", current.Status, to)
}

// ApplyPlan performs the writes of plan against appt. It must run inside the
// caller's transaction; every write is conditioned on the version read.
func ApplyPlan(ctx context.Context, appts AppointmentRepository, slots SlotRepository, appt *Appointment, plan AppointmentPlan) error {
	if plan.Noop {
		return nil
	}
	appt.Status = plan.To
	if err := appts.UpdateStatus(ctx, appt); err != nil {
		return err
	}
	if !plan.FreeSlot {
		return nil
	}
	slot, err := slots.GetByID(ctx, appt.SlotID)
	if err != nil {
		return err
	}
	if slot.IsAvailable {
		return nil
	}
	slot.IsAvailable = true
	return slots.Update(ctx, slot)
}
