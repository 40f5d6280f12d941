package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
	"github.com/tiptoro/tiptoro-api/internal/service/auth"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

// TokenIssuer creates access tokens.
type TokenIssuer interface {
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)
	TokenLifetime() time.Duration
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	users      store.UserStore
	tokens     TokenIssuer
	bcryptCost int
	now        func() time.Time
}

// NewAuthHandler creates an AuthHandler. bcryptCost is passed to
// auth.HashPassword.
func NewAuthHandler(users store.UserStore, tokens TokenIssuer, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := domain.NewUser(req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid user data", err)
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	user.HashedPassword = hash
	user.Password = ""

	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			respondError(w, r, http.StatusConflict, "Email already exists", err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	logger.FromContext(r.Context()).Info("user registered", "user_id", user.ID)
	h.respondWithToken(w, r, http.StatusCreated, user.ID)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			respondError(w, r, http.StatusUnauthorized, "Invalid credentials", err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to authenticate user", err)
		return
	}

	if err := auth.VerifyPassword(user.HashedPassword, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			respondError(w, r, http.StatusUnauthorized, "Invalid credentials", err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to authenticate user", err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user.ID)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, userID uuid.UUID) {
	token, err := h.tokens.GenerateToken(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to generate authentication token", err)
		return
	}
	shared.RespondWithJSON(w, r, status, AuthResponse{
		UserID:      userID,
		AccessToken: token,
		ExpiresAt:   h.now().Add(h.tokens.TokenLifetime()).UTC().Format(time.RFC3339),
	})
}
