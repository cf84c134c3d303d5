package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/notification"
	"github.com/iliyamo/sake-tasting-reservation/internal/service"
)

// requestTimeout bounds one action, including the finalize poll.
const requestTimeout = 30 * time.Second

const maxBodyBytes = 1 << 20

// Backends names the adapters in use, reported by testConfig.
type Backends struct {
	Store    string `json:"store"`
	Payments string `json:"payments"`
	Calendar string `json:"calendar"`
	Cache    string `json:"cache"`
	Queue    string `json:"queue"`
}

// ActionHandler serves the single /exec endpoint used by the booking widget
// and the admin panel.  Every call names an action; its payload is decoded
// into that action's request type before reaching the engine.
type ActionHandler struct {
	Bookings  *service.BookingService
	Templates *notification.Templates
	Auth      *AuthHandler
	Cfg       config.Config
	Backends  Backends
	Log       *zap.Logger

	actions map[string]action
}

type action struct {
	admin bool
	run   func(ctx context.Context, payload json.RawMessage) (any, error)
}

func NewActionHandler(b *service.BookingService, t *notification.Templates, a *AuthHandler, cfg config.Config, be Backends, log *zap.Logger) *ActionHandler {
	h := &ActionHandler{Bookings: b, Templates: t, Auth: a, Cfg: cfg, Backends: be, Log: log}
	h.actions = map[string]action{
		"getAvailability":     {run: h.getAvailability},
		"getMonthStatus":      {run: h.getMonthStatus},
		"createBooking":       {run: h.createBooking},
		"finalizeBooking":     {run: h.finalizeBooking},
		"quote":               {run: h.quote},
		"login":               {run: h.login},
		"testConfig":          {run: h.testConfig},
		"getBookings":         {admin: true, run: h.getBookings},
		"updateStatus":        {admin: true, run: h.updateStatus},
		"deleteBooking":       {admin: true, run: h.deleteBooking},
		"getEmailTemplate":    {admin: true, run: h.getEmailTemplate},
		"updateEmailTemplate": {admin: true, run: h.updateEmailTemplate},
	}
	return h
}

// Exec handles GET and POST /exec.  The body is {action, payload, token};
// action and token may also come from the query string, and query
// parameters are merged under the body payload.  The shared token is
// checked before anything else, then admin actions require an ADMIN bearer
// token.
func (h *ActionHandler) Exec(c echo.Context) error {
	env, err := readEnvelope(c)
	if err != nil {
		return writeError(c, h.Log, service.NewError(service.CodeInvalidRequest, "malformed request body", err))
	}
	if !h.tokenOK(env.Token) {
		return writeError(c, h.Log, service.NewError(service.CodeTokenMismatch, "security token mismatch", nil))
	}
	act, ok := h.actions[env.Action]
	if !ok {
		return writeError(c, h.Log, service.NewError(service.CodeInvalidAction, "unknown action "+env.Action, nil))
	}
	if act.admin && !h.Auth.Authorized(c) {
		return writeError(c, h.Log, service.NewError(service.CodeUnauthorized, "admin token required", nil))
	}
	payload, err := mergePayload(c.QueryParams(), env.Payload)
	if err != nil {
		return writeError(c, h.Log, service.NewError(service.CodeInvalidRequest, "malformed payload", err))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	res, err := act.run(ctx, payload)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func readEnvelope(c echo.Context) (envelope, error) {
	var env envelope
	if body := c.Request().Body; body != nil {
		raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
		if err != nil {
			return env, err
		}
		if len(strings.TrimSpace(string(raw))) > 0 {
			if err := json.Unmarshal(raw, &env); err != nil {
				return env, err
			}
		}
	}
	if env.Action == "" {
		env.Action = c.QueryParam("action")
	}
	if env.Token == "" {
		env.Token = c.QueryParam("token")
	}
	return env, nil
}

func (h *ActionHandler) tokenOK(token string) bool {
	if h.Cfg.SecurityToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Cfg.SecurityToken)) == 1
}

func kindOf(s string) model.ReservationKind {
	return model.ReservationKind(strings.ToUpper(strings.TrimSpace(s)))
}

func (h *ActionHandler) getAvailability(ctx context.Context, raw json.RawMessage) (any, error) {
	var req availabilityReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	return h.Bookings.Availability(ctx, strings.TrimSpace(req.Date), kindOf(req.Type))
}

func (h *ActionHandler) getMonthStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var req monthStatusReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	return h.Bookings.MonthStatus(ctx, int(req.Year), int(req.Month), kindOf(req.Type), bool(req.Force))
}

func (h *ActionHandler) createBooking(ctx context.Context, raw json.RawMessage) (any, error) {
	var req createBookingReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	res, err := h.Bookings.CreateBooking(ctx, req.toModel())
	if err != nil {
		return nil, err
	}
	out := echo.Map{"success": true}
	if res.ID != "" {
		out["id"] = res.ID
	}
	if res.CheckoutURL != "" {
		out["checkoutUrl"] = res.CheckoutURL
		out["sessionId"] = res.SessionID
	}
	return out, nil
}

func (h *ActionHandler) finalizeBooking(ctx context.Context, raw json.RawMessage) (any, error) {
	var req finalizeReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	res, err := h.Bookings.Finalize(ctx, strings.TrimSpace(req.SessionID))
	if err != nil {
		return nil, err
	}
	return echo.Map{"success": true, "id": res.BookingID, "alreadyFinalized": res.AlreadyFinalized}, nil
}

func (h *ActionHandler) quote(_ context.Context, raw json.RawMessage) (any, error) {
	var req quoteReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	kind := kindOf(req.Type)
	if !kind.Valid() {
		return nil, service.NewError(service.CodeInvalidRequest, "type must be PRIVATE or GROUP", nil)
	}
	q := service.QuotePrice(kind, req.counts())
	return echo.Map{"success": true, "subtotal": q.Subtotal, "bookingFee": q.BookingFee, "total": q.Total}, nil
}

func (h *ActionHandler) login(_ context.Context, raw json.RawMessage) (any, error) {
	var req loginReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	tok, err := h.Auth.Authenticate(req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return echo.Map{"success": true, "token": tok.Token, "expires": tok.Exp}, nil
}

func (h *ActionHandler) testConfig(context.Context, json.RawMessage) (any, error) {
	return echo.Map{"success": true, "env": h.Cfg.Env, "backends": h.Backends, "refundPolicy": h.Cfg.RefundPolicy}, nil
}

func (h *ActionHandler) getBookings(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.Bookings.ListBookings(ctx)
}

func (h *ActionHandler) updateStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var req updateStatusReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	b, err := h.Bookings.UpdateStatus(ctx, req.toUpdate())
	if err != nil {
		return nil, err
	}
	return echo.Map{"success": true, "booking": b}, nil
}

func (h *ActionHandler) deleteBooking(ctx context.Context, raw json.RawMessage) (any, error) {
	var req idReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	if err := h.Bookings.DeleteBooking(ctx, strings.TrimSpace(req.ID)); err != nil {
		return nil, err
	}
	return echo.Map{"success": true}, nil
}

func (h *ActionHandler) getEmailTemplate(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.Templates.All(ctx)
}

func (h *ActionHandler) updateEmailTemplate(ctx context.Context, raw json.RawMessage) (any, error) {
	var req templateUpdateReq
	if err := decodePayload(raw, &req); err != nil {
		return nil, err
	}
	if !notification.ValidKey(req.Key) {
		return nil, service.NewError(service.CodeInvalidRequest, "unknown template key "+req.Key, nil)
	}
	if err := h.Templates.Put(ctx, req.Key, req.Value); err != nil {
		return nil, err
	}
	return echo.Map{"success": true}, nil
}
