package doctor

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

// Doctor is a bookable practitioner profile. IsAvailable is the profile-level
// flag and is independent of slot availability.
type Doctor struct {
	ID              uuid.UUID       `json:"id"`
	UserID          *uuid.UUID      `json:"userId,omitempty"`
	FullName        string          `json:"fullName"`
	Specialization  string          `json:"specialization"`
	Email           string          `json:"email"`
	PhoneNumber     string          `json:"phoneNumber,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultationFee"`
	IsAvailable     bool            `json:"isAvailable"`
	VersionID       int             `json:"versionId"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Input is the writable part of a Doctor.
type Input struct {
	UserID          *uuid.UUID      `json:"userId,omitempty"`
	FullName        string          `json:"fullName"`
	Specialization  string          `json:"specialization"`
	Email           string          `json:"email"`
	PhoneNumber     string          `json:"phoneNumber"`
	ConsultationFee decimal.Decimal `json:"consultationFee"`
	IsAvailable     *bool           `json:"isAvailable,omitempty"`
	VersionID       int             `json:"versionId,omitempty"`
}

func (in *Input) normalize() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	switch {
	case in.FullName == "":
		return apperr.Validation("fullName is required")
	case in.Specialization == "":
		return apperr.Validation("specialization is required")
	case in.Email == "":
		return apperr.Validation("email is required")
	case len(in.FullName) > 200:
		return apperr.Validation("fullName must be at most 200 characters")
	case len(in.Specialization) > 100:
		return apperr.Validation("specialization must be at most 100 characters")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.Validation("email is not a valid address")
	}
	if in.ConsultationFee.IsNegative() {
		return apperr.Validation("consultationFee must not be negative")
	}
	if !in.ConsultationFee.Equal(in.ConsultationFee.Round(2)) {
		return apperr.Validation("consultationFee must have at most two decimal places")
	}
	return nil
}

func (in *Input) apply(d *Doctor) {
	d.UserID = in.UserID
	d.FullName = in.FullName
	d.Specialization = in.Specialization
	d.Email = in.Email
	d.PhoneNumber = in.PhoneNumber
	d.ConsultationFee = in.ConsultationFee
	if in.IsAvailable != nil {
		d.IsAvailable = *in.IsAvailable
	}
}
