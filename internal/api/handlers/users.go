package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/service"
)

type UserHandler struct {
	data   *service.DataStore
	hasher *auth.Hasher
	logger *zap.Logger
}

func NewUserHandler(data *service.DataStore, hasher *auth.Hasher, logger *zap.Logger) *UserHandler {
	return &UserHandler{data: data, hasher: hasher, logger: logger}
}

type createUserRequest struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      domain.Role `json:"role"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	u, err := h.data.AddTenantUser(r.Context(), service.UserDraft{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.data.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
