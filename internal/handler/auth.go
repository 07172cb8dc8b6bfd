package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/auth"
	"github.com/tigerstorage/storage-marketplace/internal/config"
	"github.com/tigerstorage/storage-marketplace/internal/model"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
	"github.com/tigerstorage/storage-marketplace/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints.  Two login paths
// share the token machinery: campus users authenticate with a CAS ticket,
// local accounts with email and password.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	CAS    *auth.CASClient // nil when CAS login is disabled
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, cas *auth.CASClient) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, CAS: cas}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"` // RENTER | LENDER
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID          uint64  `json:"id"`
	NetID       *string `json:"netid,omitempty"`
	Email       *string `json:"email,omitempty"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func userPartOf(u *model.User) userPart {
	return userPart{ID: u.ID, NetID: u.NetID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}

// Register creates a local password account and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleLender && role != model.RoleRenter {
		role = model.RoleRenter
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = req.Email
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}
	uid, err := h.Users.CreateLocal(ctx, req.Email, name, hash, role)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return h.issueTokens(c, ctx, u)
}

// Login authenticates a local account with email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if !u.IsActive || u.PasswordHash == nil || !utils.VerifyPassword(*u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issueTokens(c, ctx, u)
}

// CASLogin exchanges a CAS service ticket for a token pair, creating the
// account on first login.  Query params: ticket, service (the URL the ticket
// was issued for) and an optional desired role (renter users may opt into
// lending at login, mirroring the frontend's role picker).
func (h *AuthHandler) CASLogin(c echo.Context) error {
	if h.CAS == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "cas login disabled"})
	}
	ticket := c.QueryParam("ticket")
	service := c.QueryParam("service")
	if ticket == "" || service == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket/service required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	netid, err := h.CAS.Validate(ctx, ticket, service)
	if errors.Is(err, auth.ErrTicketInvalid) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid ticket"})
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "cas unreachable"})
	}
	u, err := h.Users.UpsertByNetID(ctx, netid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "account lookup failed"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	if role := strings.ToUpper(c.QueryParam("role")); role == model.RoleLender && u.Role == model.RoleRenter {
		if err := h.Users.SetRole(ctx, u.ID, model.RoleLender); err == nil {
			u.Role = model.RoleLender
		}
	}
	return h.issueTokens(c, ctx, u)
}

// Refresh rotates a refresh token: validates the presented token, revokes it
// and issues a fresh pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash := utils.HashRefreshRaw(req.RefreshToken)
	uid, err := h.Tokens.Validate(ctx, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token lookup failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	if err := h.Tokens.Revoke(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	return h.issueTokens(c, ctx, u)
}

// Logout revokes the presented refresh token.  Access tokens expire on their
// own.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Tokens.Revoke(ctx, utils.HashRefreshRaw(req.RefreshToken)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, userPartOf(u))
}

// BecomeLender upgrades a renter to the lender role so they can create
// listings.  Admins keep their role.
func (h *AuthHandler) BecomeLender(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid := currentUserID(c)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if u.Role == model.RoleAdmin || u.Role == model.RoleLender {
		return c.JSON(http.StatusOK, userPartOf(u))
	}
	if err := h.Users.SetRole(ctx, uid, model.RoleLender); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	u.Role = model.RoleLender
	return c.JSON(http.StatusOK, userPartOf(u))
}

func (h *AuthHandler) issueTokens(c echo.Context, ctx context.Context, u *model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token store failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:    userPartOf(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}
