package scheduling_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/clinic/internal/domain/scheduling"
	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/lock"
)

func raceBookings(t *testing.T, f *fixture, slotID uuid.UUID, n int) (booked, conflicts int) {
	t.Helper()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.BookAppointment(context.Background(), admin, scheduling.BookRequest{PatientID: f.patientID, SlotID: slotID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return booked, conflicts
}

func TestBookAppointment_ConcurrentRequestsOneWins(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, nine, 30*time.Minute)

	booked, conflicts := raceBookings(t, f, s.ID, 2)
	if booked != 1 || conflicts != 1 {
		t.Fatalf("expected 1 success and 1 conflict, got %d and %d", booked, conflicts)
	}
	if f.store.AppointmentCount() != 1 {
		t.Errorf("expected exactly one appointment, got %d", f.store.AppointmentCount())
	}
	if f.slotAvailable(t, s.ID) {
		t.Error("slot must be taken")
	}
}

func TestBookAppointment_ManyConcurrentWithSlotHold(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixture(t, scheduling.WithLocker(lock.New(client, 5*time.Second, "slot-hold:")))
	s := f.slot(t, nine, 30*time.Minute)

	booked, conflicts := raceBookings(t, f, s.ID, 20)
	if booked != 1 || conflicts != 19 {
		t.Fatalf("expected 1 success and 19 conflicts, got %d and %d", booked, conflicts)
	}
	if mr.Exists("slot-hold:" + s.ID.String()) {
		t.Error("slot hold must be released after booking")
	}
}

type stubLocker struct {
	ok       bool
	err      error
	unlocked []string
}

func (l *stubLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	return "token", l.ok, l.err
}

func (l *stubLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

func TestBookAppointment_SlotHeldElsewhere(t *testing.T) {
	l := &stubLocker{ok: false}
	f := newFixture(t, scheduling.WithLocker(l))
	s := f.slot(t, nine, 30*time.Minute)

	_, err := f.svc.BookAppointment(context.Background(), admin, scheduling.BookRequest{PatientID: f.patientID, SlotID: s.ID})
	assertKind(t, err, apperr.ErrConflict)
	if len(l.unlocked) != 0 {
		t.Error("a hold that was not acquired must not be released")
	}
}

func TestBookAppointment_LockErrorFailsBooking(t *testing.T) {
	l := &stubLocker{err: errors.New("redis: connection refused")}
	f := newFixture(t, scheduling.WithLocker(l))
	s := f.slot(t, nine, 30*time.Minute)

	_, err := f.svc.BookAppointment(context.Background(), admin, scheduling.BookRequest{PatientID: f.patientID, SlotID: s.ID})
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if f.store.AppointmentCount() != 0 {
		t.Error("no appointment without the hold")
	}
}

func TestBookAppointment_ReleasesHold(t *testing.T) {
	l := &stubLocker{ok: true}
	f := newFixture(t, scheduling.WithLocker(l))
	s := f.slot(t, nine, 30*time.Minute)

	f.book(t, s.ID)
	if len(l.unlocked) != 1 || l.unlocked[0] != s.ID.String() {
		t.Errorf("expected hold on %s released, got %v", s.ID, l.unlocked)
	}
}
