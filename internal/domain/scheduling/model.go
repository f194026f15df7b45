package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

// MaxReasonLength bounds Appointment.Reason.
const MaxReasonLength = 500

// Slot is a bookable interval in a doctor's calendar.
type Slot struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	IsAvailable bool      `json:"isAvailable"`
	VersionID   int       `json:"versionId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Overlaps applies the half-open [start, end) test, so touching endpoints do
// not overlap.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusConfirmed AppointmentStatus = "Confirmed"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(s)
	if !st.Valid() {
		return "", apperr.Validation("invalid appointment status %q", s)
	}
	return st, nil
}

// Appointment binds one patient to one slot. DoctorID is read from the slot
// and is not stored on the appointment row.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patientId"`
	SlotID          uuid.UUID         `json:"slotId"`
	DoctorID        uuid.UUID         `json:"doctorId"`
	AppointmentDate time.Time         `json:"appointmentDate"`
	Status          AppointmentStatus `json:"status"`
	Reason          *string           `json:"reason,omitempty"`
	VersionID       int               `json:"versionId"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// SlotInput carries the writable fields of a slot. VersionID, when non-zero,
// must match the stored version for updates to apply.
type SlotInput struct {
	DoctorID    uuid.UUID `json:"doctorId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	IsAvailable *bool     `json:"isAvailable,omitempty"`
	VersionID   int       `json:"versionId,omitempty"`
}

func (in SlotInput) validate() error {
	if in.DoctorID == uuid.Nil {
		return apperr.Validation("doctorId is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return apperr.Validation("startTime and endTime are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return apperr.Validation("end time must be after start time")
	}
	return nil
}

type BookRequest struct {
	PatientID uuid.UUID `json:"patientId"`
	SlotID    uuid.UUID `json:"slotId"`
	Reason    string    `json:"reason"`
}

// AvailableFilter narrows ListAvailable. Date selects [Date, Date+24h).
type AvailableFilter struct {
	DoctorID *uuid.UUID
	Date     *time.Time
}
