package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/db"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

var paymentColumns = []string{"id", "appointment_id", "amount", "payment_method", "transaction_id", "status",
	"payment_date", "version_id", "created_at", "updated_at"}

func TestPaymentRepoPG_CreateDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)

	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "Pending", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: "payments_appointment_id_key"})

	err := repo.Create(context.Background(), &Payment{AppointmentID: uuid.New(), Amount: decimal.NewFromInt(10), Status: PaymentPending})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	assert.Equal(t, msgPaymentExists, apperr.HTTP(err).Message)
}

func TestPaymentRepoPG_GetByAppointment(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)
	id, apptID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM payments WHERE appointment_id = \\$1").
		WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows(paymentColumns).
			AddRow(id, apptID, "100.00", "card", nil, "Completed", now, 3, now, now))

	p, err := repo.GetByAppointment(context.Background(), apptID)
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, p.Status)
	assert.Equal(t, "100.00", p.Amount.StringFixed(2))
	assert.Nil(t, p.TransactionID)
}

func TestPaymentRepoPG_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)

	mock.ExpectQuery("FROM payments WHERE id").WithArgs(pgxmock.AnyArg()).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestPaymentRepoPG_UpdateStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)
	now := time.Now().UTC()
	p := &Payment{ID: uuid.New(), Status: PaymentRefunded, VersionID: 2}

	mock.ExpectQuery("UPDATE payments SET status = \\$3 .+ WHERE id = \\$1 AND version_id = \\$2").
		WithArgs(p.ID, 2, "Refunded").
		WillReturnRows(pgxmock.NewRows([]string{"version_id", "updated_at"}).AddRow(3, now))

	require.NoError(t, repo.UpdateStatus(context.Background(), p))
	assert.Equal(t, 3, p.VersionID)
}

func TestPaymentRepoPG_UpdateStatus_Stale(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)
	p := &Payment{ID: uuid.New(), Status: PaymentCompleted, VersionID: 1}

	mock.ExpectQuery("UPDATE payments").WithArgs(p.ID, 1, "Completed").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.UpdateStatus(context.Background(), p)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}

func TestPaymentRepoPG_Delete(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepoPG(mock)

	mock.ExpectExec("DELETE FROM payments").WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}
