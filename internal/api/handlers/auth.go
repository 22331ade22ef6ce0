package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mw "github.com/leadcrm/leadcrm/internal/api/middleware"
	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/service"
	"github.com/leadcrm/leadcrm/internal/token"
)

type AuthHandler struct {
	svc     *service.AuthService
	data    *service.DataStore
	tokens  *token.Service
	facades mw.FacadeFactory
	metrics *mw.Metrics
	logger  *zap.Logger
	secure  bool
}

func NewAuthHandler(svc *service.AuthService, data *service.DataStore, tokens *token.Service, facades mw.FacadeFactory, metrics *mw.Metrics, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, data: data, tokens: tokens, facades: facades, metrics: metrics, logger: logger}
}

// SetSecureCookies marks the session cookie Secure.
func (h *AuthHandler) SetSecureCookies(secure bool) {
	h.secure = secure
}

type registerTenantResponse struct {
	User         *domain.User   `json:"user"`
	Tenant       *domain.Tenant `json:"tenant"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

func (h *AuthHandler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.RegisterTenant(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.beginSession(w, r, sess.Tokens)

	writeJSON(w, http.StatusCreated, registerTenantResponse{
		User:         sess.User,
		Tenant:       sess.Tenant,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         *domain.User `json:"user"`
	Token        string       `json:"token"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailure("credentials")
		}
		writeDomainError(w, h.logger, err)
		return
	}
	h.beginSession(w, r, sess.Tokens)

	writeJSON(w, http.StatusOK, loginResponse{
		User:         sess.User,
		Token:        sess.Tokens.AccessToken,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token from the body, or the one held in the
// cookie session, for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		access string
		err    error
	)
	if req.RefreshToken != "" {
		access, err = h.svc.Refresh(r.Context(), req.RefreshToken)
	} else if slot := sessionSlot(r); slot != "" {
		access, err = h.facades(slot).Refresh(r.Context())
	} else {
		err = domain.ErrUnauthenticated
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailure("refresh")
		}
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

type meResponse struct {
	User        *domain.User         `json:"user"`
	Permissions []domain.Permission  `json:"permissions"`
	Tenant      *domain.Tenant       `json:"tenant"`
	Profile     domain.TenantProfile `json:"profile"`
}

// Me runs behind Authenticate.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	tenant, profile, err := h.data.CurrentTenant(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:        user,
		Permissions: user.Role.Permissions(),
		Tenant:      tenant,
		Profile:     profile,
	})
}

// Logout ends the cookie session, if any, and drops the tenant's cached
// data. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if slot := sessionSlot(r); slot != "" {
		if err := h.facades(slot).Logout(r.Context()); err != nil {
			h.logger.Warn("logout cleanup failed", zap.Error(err))
		}
	} else if u := h.tokens.UserFromToken(mw.BearerToken(r)); u != nil {
		if err := h.data.ClearTenantData(r.Context(), u.TenantID); err != nil {
			h.logger.Warn("logout cleanup failed", zap.Error(err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

// beginSession stores the pair under a fresh slot and hands the slot to the
// client as a cookie. The slot is a bearer secret, so it is a random v4 UUID
// rather than a time-ordered id. Failure here does not fail the request; the tokens
// in the body still work.
func (h *AuthHandler) beginSession(w http.ResponseWriter, r *http.Request, pair domain.TokenPair) {
	slot := uuid.NewString()
	if err := h.facades(slot).Begin(r.Context(), pair); err != nil {
		h.logger.Warn("failed to store session", zap.Error(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    slot,
		Path:     "/",
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   int(time.Until(pair.RefreshExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionSlot(r *http.Request) string {
	c, err := r.Cookie(mw.SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
