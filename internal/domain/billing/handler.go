package billing

import (
	"net/http"

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
	// Guards are per route: an empty-prefix api.Group would re-register the
	// group's catch-all with its middleware and turn unknown /api paths into 401s.
	member := auth.RequireAuthenticated()
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.POST("/payments", h.CreatePayment, member)
	api.GET("/payments/:id", h.GetPayment, member)
	api.GET("/payments/appointment/:appointmentId", h.GetPaymentByAppointment, member)

	api.PUT("/payments/:id/status", h.SetPaymentStatus, staff)

	api.GET("/payments", h.ListPayments, admin)
	api.POST("/payments/:id/refund", h.Refund, admin)
	api.DELETE("/payments/:id", h.DeletePayment, admin)
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

func (h *Handler) CreatePayment(c echo.Context) error {
	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.CreatePayment(c.Request().Context(), actorOf(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPaymentByAppointment(c echo.Context) error {
	id, err := parseID(c, "appointmentId")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPaymentByAppointment(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPayments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPayments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Payment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type statusRequest struct {
	Status                     string `json:"status"`
	CancelAppointmentOnFailure bool   `json:"cancelAppointmentOnFailure"`
}

func (h *Handler) SetPaymentStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	to, err := ParsePaymentStatus(req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	if _, err := h.svc.SetPaymentStatus(c.Request().Context(), actorOf(c), id, to, req.CancelAppointmentOnFailure); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.svc.Refund(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Payment refunded successfully"})
}

func (h *Handler) DeletePayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePayment(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
