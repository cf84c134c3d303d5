package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/middleware"
	"github.com/iliyamo/sake-tasting-reservation/internal/service"
	"github.com/iliyamo/sake-tasting-reservation/internal/utils"
)

// AuthHandler checks the single admin credential pair and issues access
// tokens.  AdminHash is the bcrypt hash of the admin password, resolved at
// startup; when empty, every login fails.
type AuthHandler struct {
	Cfg       config.Config
	AdminHash string
	Log       *zap.Logger
}

func NewAuthHandler(cfg config.Config, adminHash string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, AdminHash: adminHash, Log: log}
}

// Authenticate verifies email and password and returns an ADMIN token.
func (h *AuthHandler) Authenticate(email, password string) (utils.AccessToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return utils.AccessToken{}, service.NewError(service.CodeInvalidRequest, "email/password required", nil)
	}
	if h.Cfg.AdminEmail == "" || email != strings.ToLower(h.Cfg.AdminEmail) || !utils.VerifyPassword(h.AdminHash, password) {
		return utils.AccessToken{}, service.NewError(service.CodeUnauthorized, "invalid credentials", nil)
	}
	return utils.NewAccessToken(h.Cfg.JWTSecret, email, utils.RoleAdmin, h.Cfg.AccessTTLMin)
}

// Authorized reports whether the request carries a valid ADMIN token.
// Always true when admin auth is switched off.
func (h *AuthHandler) Authorized(c echo.Context) bool {
	if !h.Cfg.AdminAuth {
		return true
	}
	raw := middleware.BearerToken(c)
	if raw == "" {
		return false
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw)
	return err == nil && claims.Role == utils.RoleAdmin
}

// Login handles POST /v1/auth/login with {email, password} and returns
// {success, token, expires}.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid body", "code": service.CodeInvalidRequest})
	}
	tok, err := h.Authenticate(req.Email, req.Password)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": tok.Token, "expires": tok.Exp})
}

// Me handles GET /v1/me and echoes the caller's token claims.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get(middleware.CtxSubject),
		"role":    c.Get(middleware.CtxRole),
	})
}
