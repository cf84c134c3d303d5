package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/service"
)

// AdminHandler exposes booking management as REST routes for staff tools
// that prefer plain HTTP verbs over the /exec action envelope.  Routes are
// mounted behind JWTAuth and RequireRole("ADMIN").
type AdminHandler struct {
	Bookings *service.BookingService
	Log      *zap.Logger
}

func NewAdminHandler(b *service.BookingService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{Bookings: b, Log: log}
}

// ListBookings handles GET /v1/admin/bookings.  Optional ?status= and
// ?date= filters narrow the list.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	all, err := h.Bookings.ListBookings(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	status := strings.ToUpper(c.QueryParam("status"))
	date := c.QueryParam("date")
	out := all[:0]
	for _, b := range all {
		if status != "" && string(b.Status) != status {
			continue
		}
		if date != "" && b.Date != date {
			continue
		}
		out = append(out, b)
	}
	return c.JSON(http.StatusOK, out)
}

// GetBooking handles GET /v1/admin/bookings/:id.
func (h *AdminHandler) GetBooking(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Bookings.GetBooking(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// UpdateBooking handles PATCH /v1/admin/bookings/:id with a body of
// {status?, secondaryStatus?, notes?, refundAmount?}.  Payment side
// effects can take a while, so the timeout is longer than for reads.
func (h *AdminHandler) UpdateBooking(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid body", "code": service.CodeInvalidRequest})
	}
	var req updateStatusReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid body", "code": service.CodeInvalidRequest})
	}
	req.ID = c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Bookings.UpdateStatus(ctx, req.toUpdate())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "booking": b})
}

// DeleteBooking handles DELETE /v1/admin/bookings/:id and answers 204.
func (h *AdminHandler) DeleteBooking(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Bookings.DeleteBooking(ctx, c.Param("id")); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
