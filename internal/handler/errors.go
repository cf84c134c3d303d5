package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/service"
)

// statusFor maps a service error code to an HTTP status.
func statusFor(code service.Code) int {
	switch code {
	case service.CodeInvalidRequest, service.CodeInvalidAction:
		return http.StatusBadRequest
	case service.CodeTokenMismatch, service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeNotFound, service.CodeDataNotFound:
		return http.StatusNotFound
	case service.CodeSlotUnavailable, service.CodeSlotFull, service.CodePriceMismatch,
		service.CodeInvalidTransition, service.CodeConflict, service.CodePaymentNotCompleted:
		return http.StatusConflict
	case service.CodePaymentExpired:
		return http.StatusGone
	case service.CodeCaptureFailed, service.CodeRefundFailed:
		return http.StatusBadGateway
	case service.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {success:false, error, code}.  Uncoded errors
// are logged and reported without their text.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	code := service.CodeOf(err)
	msg := err.Error()
	var se *service.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	if code == service.CodeInternal {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(statusFor(code), echo.Map{"success": false, "error": msg, "code": code})
}
