package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/google/uuid"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateUser registers a user. Registering an email that already exists
// returns the existing user with 200.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		Error(w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		Error(w, http.StatusBadRequest, "invalid email")
		return
	}

	ctx := r.Context()
	if existing, err := h.repo.FindUserByEmail(ctx, req.Email); err != nil {
		slog.Error("Failed to look up user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	} else if existing != nil {
		JSON(w, http.StatusOK, existing)
		return
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: h.opts.Now().UTC(),
	}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent registration of the same email.
			if existing, findErr := h.repo.FindUserByEmail(ctx, req.Email); findErr == nil && existing != nil {
				JSON(w, http.StatusOK, existing)
				return
			}
		}
		slog.Error("Failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	slog.Info("User created", "user_id", user.ID)
	JSON(w, http.StatusCreated, user)
}
