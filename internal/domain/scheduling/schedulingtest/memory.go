// Package schedulingtest provides an in-memory scheduling store for service
// and handler tests in this and dependent packages.
package schedulingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinic/internal/domain/scheduling"
	"github.com/clinicbook/clinic/internal/platform/apperr"
)

// Snapshotter lets other in-memory repositories take part in Store
// transactions. Snapshot is called with the store lock held and returns a
// function that restores the captured state.
type Snapshotter interface {
	Snapshot() (restore func())
}

type txKey struct{}

// Store is a serializable in-memory backend. WithinTx holds the store lock for
// the whole unit of work and rolls back every map on error.
type Store struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]scheduling.Slot
	appts    map[uuid.UUID]scheduling.Appointment
	doctors  map[uuid.UUID]bool
	patients map[uuid.UUID]bool

	// Extra repositories rolled back together with the store.
	Extra []Snapshotter

	// FailSlotUpdate, when set, is returned by the next slot update.
	FailSlotUpdate error
}

func New() *Store {
	return &Store{
		slots:    make(map[uuid.UUID]scheduling.Slot),
		appts:    make(map[uuid.UUID]scheduling.Appointment),
		doctors:  make(map[uuid.UUID]bool),
		patients: make(map[uuid.UUID]bool),
	}
}

// Lock acquires the store lock unless ctx belongs to a running transaction.
func (s *Store) Lock(ctx context.Context) (unlock func()) {
	if st, _ := ctx.Value(txKey{}).(*Store); st == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) AddDoctor() uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.doctors[id] = true
	s.mu.Unlock()
	return id
}

func (s *Store) AddPatient() uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.patients[id] = true
	s.mu.Unlock()
	return id
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if st, _ := ctx.Value(txKey{}).(*Store); st == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := make(map[uuid.UUID]scheduling.Slot, len(s.slots))
	for k, v := range s.slots {
		slots[k] = v
	}
	appts := make(map[uuid.UUID]scheduling.Appointment, len(s.appts))
	for k, v := range s.appts {
		appts[k] = v
	}
	restores := make([]func(), 0, len(s.Extra))
	for _, x := range s.Extra {
		restores = append(restores, x.Snapshot())
	}

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.slots, s.appts = slots, appts
		for _, r := range restores {
			r()
		}
		return err
	}
	return nil
}

func (s *Store) Slots() scheduling.SlotRepository               { return slotRepo{s} }
func (s *Store) Appointments() scheduling.AppointmentRepository { return apptRepo{s} }
func (s *Store) Doctors() scheduling.DoctorLookup               { return doctorLookup{s} }
func (s *Store) Patients() scheduling.PatientLookup             { return patientLookup{s} }

// SlotCount and AppointmentCount read committed state for assertions.
func (s *Store) SlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *Store) AppointmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts)
}

type doctorLookup struct{ s *Store }

func (l doctorLookup) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	defer l.s.Lock(ctx)()
	return l.s.doctors[id], nil
}

type patientLookup struct{ s *Store }

func (l patientLookup) IsPatient(ctx context.Context, id uuid.UUID) (bool, error) {
	defer l.s.Lock(ctx)()
	return l.s.patients[id], nil
}

// =========== Slots ===========

type slotRepo struct{ s *Store }

func (r slotRepo) overlaps(sl *scheduling.Slot) bool {
	for _, other := range r.s.slots {
		if other.ID != sl.ID && other.DoctorID == sl.DoctorID && other.Overlaps(sl.StartTime, sl.EndTime) {
			return true
		}
	}
	return false
}

func (r slotRepo) Create(ctx context.Context, sl *scheduling.Slot) error {
	defer r.s.Lock(ctx)()
	if !r.s.doctors[sl.DoctorID] {
		return apperr.NotFound("doctor not found")
	}
	sl.ID = uuid.New()
	if r.overlaps(sl) {
		return apperr.Conflict("this time slot overlaps with an existing slot")
	}
	sl.VersionID = 1
	sl.CreatedAt = time.Now().UTC()
	sl.UpdatedAt = sl.CreatedAt
	r.s.slots[sl.ID] = *sl
	return nil
}

func (r slotRepo) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Slot, error) {
	defer r.s.Lock(ctx)()
	sl, ok := r.s.slots[id]
	if !ok {
		return nil, apperr.NotFound("slot not found")
	}
	return &sl, nil
}

func (r slotRepo) Update(ctx context.Context, sl *scheduling.Slot) error {
	defer r.s.Lock(ctx)()
	if err := r.s.FailSlotUpdate; err != nil {
		r.s.FailSlotUpdate = nil
		return err
	}
	cur, ok := r.s.slots[sl.ID]
	if !ok {
		return apperr.NotFound("slot not found")
	}
	if cur.VersionID != sl.VersionID {
		return apperr.Conflict("slot was modified concurrently")
	}
	if r.overlaps(sl) {
		return apperr.Conflict("this time slot overlaps with an existing slot")
	}
	sl.VersionID++
	sl.UpdatedAt = time.Now().UTC()
	r.s.slots[sl.ID] = *sl
	return nil
}

func (r slotRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.Lock(ctx)()
	if _, ok := r.s.slots[id]; !ok {
		return apperr.NotFound("slot not found")
	}
	for _, a := range r.s.appts {
		if a.SlotID == id {
			return apperr.Conflict("cannot delete slot with existing appointment")
		}
	}
	delete(r.s.slots, id)
	return nil
}

func (r slotRepo) sorted(keep func(scheduling.Slot) bool) []*scheduling.Slot {
	var out []*scheduling.Slot
	for _, sl := range r.s.slots {
		if keep(sl) {
			sl := sl
			out = append(out, &sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r slotRepo) List(ctx context.Context, limit, offset int) ([]*scheduling.Slot, int, error) {
	defer r.s.Lock(ctx)()
	all := r.sorted(func(scheduling.Slot) bool { return true })
	return page(all, limit, offset), len(all), nil
}

func (r slotRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*scheduling.Slot, error) {
	defer r.s.Lock(ctx)()
	return r.sorted(func(sl scheduling.Slot) bool { return sl.DoctorID == doctorID }), nil
}

func (r slotRepo) ListAvailable(ctx context.Context, f scheduling.AvailableFilter) ([]*scheduling.Slot, error) {
	defer r.s.Lock(ctx)()
	var from, to time.Time
	if f.Date != nil {
		u := f.Date.UTC()
		from = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		to = from.Add(24 * time.Hour)
	}
	return r.sorted(func(sl scheduling.Slot) bool {
		if !sl.IsAvailable {
			return false
		}
		if f.DoctorID != nil && sl.DoctorID != *f.DoctorID {
			return false
		}
		if f.Date != nil && (sl.StartTime.Before(from) || !sl.StartTime.Before(to)) {
			return false
		}
		return true
	}), nil
}

func (r slotRepo) HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	defer r.s.Lock(ctx)()
	return r.overlaps(&scheduling.Slot{ID: exclude, DoctorID: doctorID, StartTime: start, EndTime: end}), nil
}

// =========== Appointments ===========

type apptRepo struct{ s *Store }

func (r apptRepo) Create(ctx context.Context, a *scheduling.Appointment) error {
	defer r.s.Lock(ctx)()
	sl, ok := r.s.slots[a.SlotID]
	if !ok || !r.s.patients[a.PatientID] {
		return apperr.NotFound("slot or patient not found")
	}
	for _, other := range r.s.appts {
		if other.SlotID == a.SlotID {
			return apperr.Conflict("slot is already booked")
		}
	}
	a.ID = uuid.New()
	a.DoctorID = sl.DoctorID
	a.VersionID = 1
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	r.s.appts[a.ID] = *a
	return nil
}

func (r apptRepo) GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	defer r.s.Lock(ctx)()
	a, ok := r.s.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, nil
}

func (r apptRepo) GetBySlot(ctx context.Context, slotID uuid.UUID) (*scheduling.Appointment, error) {
	defer r.s.Lock(ctx)()
	for _, a := range r.s.appts {
		if a.SlotID == slotID {
			return &a, nil
		}
	}
	return nil, apperr.NotFound("appointment not found")
}

func (r apptRepo) UpdateStatus(ctx context.Context, a *scheduling.Appointment) error {
	defer r.s.Lock(ctx)()
	cur, ok := r.s.appts[a.ID]
	if !ok {
		return apperr.NotFound("appointment not found")
	}
	if cur.VersionID != a.VersionID {
		return apperr.Conflict("appointment was modified concurrently")
	}
	cur.Status = a.Status
	cur.VersionID++
	cur.UpdatedAt = time.Now().UTC()
	r.s.appts[a.ID] = cur
	a.VersionID, a.UpdatedAt = cur.VersionID, cur.UpdatedAt
	return nil
}

func (r apptRepo) sorted(keep func(scheduling.Appointment) bool) []*scheduling.Appointment {
	var out []*scheduling.Appointment
	for _, a := range r.s.appts {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	return out
}

func (r apptRepo) List(ctx context.Context, limit, offset int) ([]*scheduling.Appointment, int, error) {
	defer r.s.Lock(ctx)()
	all := r.sorted(func(scheduling.Appointment) bool { return true })
	return page(all, limit, offset), len(all), nil
}

func (r apptRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*scheduling.Appointment, error) {
	defer r.s.Lock(ctx)()
	return r.sorted(func(a scheduling.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r apptRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*scheduling.Appointment, error) {
	defer r.s.Lock(ctx)()
	return r.sorted(func(a scheduling.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
