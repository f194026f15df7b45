package scheduling

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	member := auth.RequireAuthenticated()
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)
	admin := auth.RequireRole(auth.RoleAdmin)

	// Slot reads are public so patients can browse before signing in.
	api.GET("/slots", h.ListSlots)
	api.GET("/slots/available", h.ListAvailableSlots)
	api.GET("/slots/doctor/:doctorId", h.ListSlotsByDoctor)
	api.GET("/slots/:id", h.GetSlot)

	api.POST("/slots", h.CreateSlot, staff)
	api.PUT("/slots/:id", h.UpdateSlot, staff)
	api.DELETE("/slots/:id", h.DeleteSlot, staff)
	api.PATCH("/slots/:id/availability", h.SetSlotAvailability, staff)
	api.GET("/appointments/doctor/:doctorId", h.ListAppointmentsByDoctor, staff)
	api.PUT("/appointments/:id/status", h.SetAppointmentStatus, staff)

	api.POST("/appointments", h.BookAppointment, member)
	api.GET("/appointments/:id", h.GetAppointment, member)
	api.GET("/appointments/patient/:patientId", h.ListAppointmentsByPatient, member)
	api.DELETE("/appointments/:id", h.CancelAppointment, member)

	api.GET("/appointments", h.ListAppointments, admin)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func actorOf(c echo.Context) auth.Actor {
	a, _ := auth.ActorFromContext(c.Request().Context())
	return a
}

// -- Slot Handlers --

func (h *Handler) CreateSlot(c echo.Context) error {
	var in SlotInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	slot, err := h.svc.CreateSlot(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	slot, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) ListSlots(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSlots(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg))
}

func (h *Handler) ListSlotsByDoctor(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListSlotsByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) ListAvailableSlots(c echo.Context) error {
	var f AvailableFilter
	if v := c.QueryParam("doctorId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
		}
		f.DoctorID = &id
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		f.Date = &d
	}
	items, err := h.svc.ListAvailableSlots(c.Request().Context(), f)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in SlotInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	slot, err := h.svc.UpdateSlot(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetSlotAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	available, err := decodeAvailability(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be true, false or {\"isAvailable\": bool}")
	}
	slot, err := h.svc.SetSlotAvailability(c.Request().Context(), id, available)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

// -- Appointment Handlers --

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), actorOf(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg))
}

func (h *Handler) ListAppointmentsByPatient(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListAppointmentsByPatient(c.Request().Context(), actorOf(c), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) ListAppointmentsByDoctor(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListAppointmentsByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) SetAppointmentStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	raw, err := decodeStatus(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a status name or {\"status\": name}")
	}
	status, err := ParseAppointmentStatus(raw)
	if err != nil {
		return apperr.HTTP(err)
	}
	if _, err := h.svc.SetAppointmentStatus(c.Request().Context(), actorOf(c), id, status); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.svc.CancelAppointment(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// decodeStatus accepts either a bare JSON string or {"status": "..."}.
func decodeStatus(r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s, nil
	}
	var wrapped struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return "", err
	}
	return wrapped.Status, nil
}

// decodeAvailability accepts either a bare JSON boolean or {"isAvailable": bool}.
func decodeAvailability(r io.Reader) (bool, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(body, &b); err == nil {
		return b, nil
	}
	var wrapped struct {
		IsAvailable *bool `json:"isAvailable"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return false, err
	}
	if wrapped.IsAvailable == nil {
		return false, echo.ErrBadRequest
	}
	return *wrapped.IsAvailable, nil
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
