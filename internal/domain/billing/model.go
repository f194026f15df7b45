package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicbook/clinic/internal/platform/apperr"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
	PaymentRefunded  PaymentStatus = "Refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.TrimSpace(s))
	if !st.Valid() {
		return "", apperr.Validation("invalid payment status %q", s)
	}
	return st, nil
}

// Payment settles one appointment. At most one exists per appointment.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointmentId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID *string         `json:"transactionId,omitempty"`
	Status        PaymentStatus   `json:"status"`
	PaymentDate   time.Time       `json:"paymentDate"`
	VersionID     int             `json:"versionId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PaymentRequest creates a payment. A missing or non-positive Amount is
// replaced by the doctor's consultation fee.
type PaymentRequest struct {
	AppointmentID uuid.UUID           `json:"appointmentId"`
	Amount        decimal.NullDecimal `json:"amount"`
	PaymentMethod string              `json:"paymentMethod"`
	TransactionID string              `json:"transactionId"`
}

func (r *PaymentRequest) validate() error {
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	switch {
	case r.AppointmentID == uuid.Nil:
		return apperr.Validation("appointmentId is required")
	case r.PaymentMethod == "":
		return apperr.Validation("paymentMethod is required")
	case len(r.PaymentMethod) > 50:
		return apperr.Validation("paymentMethod must be at most 50 characters")
	case len(r.TransactionID) > 200:
		return apperr.Validation("transactionId must be at most 200 characters")
	}
	if r.Amount.Valid && !r.Amount.Decimal.Equal(r.Amount.Decimal.Round(2)) {
		return apperr.Validation("amount must have at most two decimal places")
	}
	return nil
}

// explicitAmount reports the caller-supplied amount, if it is usable.
func (r *PaymentRequest) explicitAmount() (decimal.Decimal, bool) {
	if !r.Amount.Valid || !r.Amount.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	return r.Amount.Decimal, true
}
