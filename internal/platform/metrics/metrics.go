package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counters and histograms for the booking engine and HTTP layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bookingsTotal          *prometheus.CounterVec
	bookingLatency         prometheus.Histogram
	appointmentTransitions *prometheus.CounterVec
	paymentTransitions     *prometheus.CounterVec
	httpRequests           *prometheus.CounterVec
	httpLatency            *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "booking_duration_seconds",
			Help:      "Time spent booking an appointment, including the slot hold",
			Buckets:   prometheus.DefBuckets,
		}),
		appointmentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "appointment_transitions_total",
			Help:      "Committed appointment status transitions",
		}, []string{"from", "to"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "payment_transitions_total",
			Help:      "Committed payment status transitions",
		}, []string{"from", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.bookingLatency,
		m.appointmentTransitions,
		m.paymentTransitions,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// NewRegistry returns a registry with Go runtime and process collectors, the
// one the server exposes on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// BookingOutcome labels a booking result: "booked" on success, else the error kind.
func BookingOutcome(err error) string {
	if err == nil {
		return "booked"
	}
	return apperr.KindOf(err).String()
}

func (m *Metrics) ObserveBooking(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(BookingOutcome(err)).Inc()
	m.bookingLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAppointmentTransition(from, to string) {
	if m == nil {
		return
	}
	m.appointmentTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObservePaymentTransition(from, to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(from, to).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
