package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventease/booking-service/internal/config"
	"github.com/eventease/booking-service/internal/lib/logger/sl"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/storage"
	"github.com/eventease/booking-service/internal/utils"
)

// UserStore persists accounts.  Create hashes the password itself.
type UserStore interface {
	Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore persists refresh token hashes.  RevokeByHash reports
// storage.ErrNotFound when no live token matched.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	log    *slog.Logger
	cfg    config.AuthConfig
	users  UserStore
	tokens TokenStore
}

func NewAuthHandler(log *slog.Logger, cfg config.AuthConfig, u UserStore, t TokenStore) *AuthHandler {
	if u == nil || t == nil {
		panic("nil store passed to NewAuthHandler")
	}
	return &AuthHandler{log: log.With(slog.String("component", "handler/auth")), cfg: cfg, users: u, tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    model.UserInfo `json:"user"`
	Access  tokenPart      `json:"access"`
	Refresh tokenPart      `json:"refresh"`
}

// Register creates a user account with role "user" and returns tokens
// immediately.  Administrators are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := c.Validate(&req); err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	uid, err := h.users.Create(ctx, req.Name, req.Email, req.Password, model.RoleUser, h.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			return message(c, http.StatusConflict, "User already exists")
		}
		return h.fail(c, "create user failed", err)
	}

	u := model.UserInfo{ID: uid, Name: req.Name, Email: req.Email, Role: model.RoleUser}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return h.fail(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return message(c, http.StatusUnauthorized, "Invalid email or password")
		}
		return h.fail(c, "load user failed", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return message(c, http.StatusUnauthorized, "Invalid email or password")
	}

	resp, err := h.issue(ctx, u.Info())
	if err != nil {
		return h.fail(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return message(c, http.StatusBadRequest, "refresh_token is required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := withTimeout(c)
	defer cancel()

	userID, err := h.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return message(c, http.StatusUnauthorized, "Invalid refresh token")
	}
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return message(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		return h.fail(c, "load user failed", err)
	}
	// Revoking is the claim: of two concurrent refreshes only one succeeds.
	if err := h.tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return message(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		return h.fail(c, "revoke refresh failed", err)
	}

	resp, err := h.issue(ctx, u.Info())
	if err != nil {
		return h.fail(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes one session when a refresh_token is supplied, otherwise
// every session of the authenticated user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := withTimeout(c)
	defer cancel()

	if raw != "" {
		if err := h.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return message(c, http.StatusUnauthorized, "Invalid refresh token")
			}
			return h.fail(c, "revoke refresh failed", err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	uid, ok := getUserID(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Not authorized")
	}
	if err := h.tokens.RevokeAllForUser(ctx, uid); err != nil {
		return h.fail(c, "revoke all failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := getUserID(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Not authorized")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return message(c, http.StatusNotFound, "User not found")
		}
		return h.fail(c, "load user failed", err)
	}
	return c.JSON(http.StatusOK, u.Info())
}

func (h *AuthHandler) issue(ctx context.Context, u model.UserInfo) (authResp, error) {
	access, err := utils.NewAccessToken(h.cfg.JWTSecret, u.ID, u.Role, h.cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func (h *AuthHandler) fail(c echo.Context, msg string, err error) error {
	h.log.Error(msg, slog.String("path", c.Path()), sl.Err(err))
	return message(c, http.StatusInternalServerError, msgInternal)
}
