package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/db"
)

const (
	msgSlotOverlap = "this time slot overlaps with an existing slot"
	msgSlotBooked  = "slot is already booked"
	msgSlotHasAppt = "cannot delete slot with existing appointment"
)

// =========== Slot Repository ===========

type slotRepoPG struct{ db db.Querier }

func NewSlotRepoPG(q db.Querier) SlotRepository { return &slotRepoPG{db: q} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.db) }

const slotCols = `id, doctor_id, start_time, end_time, is_available, version_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	if err := row.Scan(&s.ID, &s.DoctorID, &s.StartTime, &s.EndTime, &s.IsAvailable,
		&s.VersionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("slot not found")
		}
		return nil, err
	}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]*Slot, error) {
	defer rows.Close()
	var out []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func slotWriteError(err error) error {
	switch {
	case db.IsExclusionViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, msgSlotOverlap)
	case db.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "end time must be after start time")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "doctor not found")
	}
	return err
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version_id, created_at, updated_at`,
		s.ID, s.DoctorID, s.StartTime, s.EndTime, s.IsAvailable,
	).Scan(&s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert slot: %w", slotWriteError(err))
	}
	return nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM slots WHERE id = $1`, id))
}

func (r *slotRepoPG) Update(ctx context.Context, s *Slot) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE slots SET doctor_id = $3, start_time = $4, end_time = $5, is_available = $6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		s.ID, s.VersionID, s.DoctorID, s.StartTime, s.EndTime, s.IsAvailable,
	).Scan(&s.VersionID, &s.UpdatedAt)
	if db.IsNoRows(err) {
		return db.StaleWrite(ctx, q, "slots", s.ID, "slot")
	}
	if err != nil {
		return fmt.Errorf("update slot: %w", slotWriteError(err))
	}
	return nil
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, msgSlotHasAppt)
	}
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("slot not found")
	}
	return nil
}

func (r *slotRepoPG) List(ctx context.Context, limit, offset int) ([]*Slot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM slots`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+slotCols+` FROM slots ORDER BY start_time LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectSlots(rows)
	return items, total, err
}

func (r *slotRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+slotCols+` FROM slots WHERE doctor_id = $1 ORDER BY start_time`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *slotRepoPG) ListAvailable(ctx context.Context, f AvailableFilter) ([]*Slot, error) {
	query := `SELECT ` + slotCols + ` FROM slots WHERE is_available`
	var args []any
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if f.Date != nil {
		day := startOfDay(*f.Date)
		args = append(args, day, day.Add(24*time.Hour))
		query += fmt.Sprintf(" AND start_time >= $%d AND start_time < $%d", len(args)-1, len(args))
	}
	query += " ORDER BY start_time"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *slotRepoPG) HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2 AND id <> $4)`,
		doctorID, start, end, exclude).Scan(&exists)
	return exists, err
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ db db.Querier }

func NewAppointmentRepoPG(q db.Querier) AppointmentRepository { return &appointmentRepoPG{db: q} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.db) }

const apptSelect = `SELECT a.id, a.patient_id, a.slot_id, s.doctor_id, a.appointment_date, a.status,
	a.reason, a.version_id, a.created_at, a.updated_at
	FROM appointments a JOIN slots s ON s.id = a.slot_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.PatientID, &a.SlotID, &a.DoctorID, &a.AppointmentDate, &status,
		&a.Reason, &a.VersionID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, slot_id, appointment_date, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version_id, created_at, updated_at`,
		a.ID, a.PatientID, a.SlotID, a.AppointmentDate, string(a.Status), a.Reason,
	).Scan(&a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err) && db.Constraint(err) == "appointments_slot_id_key":
		return apperr.Wrap(apperr.KindConflict, err, msgSlotBooked)
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "slot or patient not found")
	}
	return fmt.Errorf("insert appointment: %w", err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) GetBySlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.slot_id = $1`, slotID))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE appointments SET status = $3, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		a.ID, a.VersionID, string(a.Status),
	).Scan(&a.VersionID, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return db.StaleWrite(ctx, q, "appointments", a.ID, "appointment")
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, apptSelect+` ORDER BY a.appointment_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppointments(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, apptSelect+` WHERE a.patient_id = $1 ORDER BY a.appointment_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, apptSelect+` WHERE s.doctor_id = $1 ORDER BY a.appointment_date DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}
