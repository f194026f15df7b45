package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingOutcome(t *testing.T) {
	assert.Equal(t, "booked", BookingOutcome(nil))
	assert.Equal(t, "conflict", BookingOutcome(apperr.Conflict("slot is already booked")))
	assert.Equal(t, "not_found", BookingOutcome(apperr.NotFound("slot not found")))
	assert.Equal(t, "internal", BookingOutcome(errors.New("boom")))
}

func TestObserveBooking(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBooking(nil, 10*time.Millisecond)
	m.ObserveBooking(apperr.Conflict("slot is not available"), 5*time.Millisecond)
	m.ObserveBooking(apperr.Conflict("slot is already booked"), 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("booked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("conflict")))
}

func TestObserveTransitions(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAppointmentTransition("Scheduled", "Confirmed")
	m.ObservePaymentTransition("Completed", "Refunded")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.appointmentTransitions.WithLabelValues("Scheduled", "Confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentTransitions.WithLabelValues("Completed", "Refunded")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBooking(nil, time.Second)
	m.ObserveAppointmentTransition("Scheduled", "Cancelled")
	m.ObservePaymentTransition("Pending", "Failed")

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	require.NoError(t, m.Middleware()(func(c echo.Context) error { return nil })(c))
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/slots/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/slots/123", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/slots/:id", "404")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ObserveBooking(nil, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `clinic_scheduling_bookings_total{outcome="booked"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
