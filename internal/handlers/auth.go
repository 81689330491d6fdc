package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/beacon-site/apiserver/internal/notify"
	"github.com/beacon-site/apiserver/internal/services"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AuthHandler provides the credential login, signup, logout, and
// verification endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, userService *services.UserService) {
	handler := NewAuthHandler(authService, userService)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Post("/verify/start", handler.StartVerification)
	r.Post("/verify/confirm", handler.ConfirmVerification)
	r.Post("/password/reset", handler.ResetPassword)
	r.With(RequireAuth).Get("/me", handler.Me)
}

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type AuthResponse struct {
	SessionToken string     `json:"session_token"`
	Expires      string     `json:"expires"`
	User         types.User `json:"user"`
}

// Signup creates a new account and logs it in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, session, err := h.authService.Signup(r.Context(), req.Email, req.Username, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrUsernameTaken):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, services.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create account")
		}
		return
	}

	writeJSON(w, http.StatusCreated, authResponse(user, session))
}

// Login verifies credentials and issues a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, session, err := h.authService.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, authResponse(user, session))
}

// Logout revokes the presented session token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, ErrUnauthenticated.Error(), CodeUnauthenticated)
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current authenticated user. Identities resolved from
// an external token may have no local record yet; reply with the
// identity itself in that case.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{
				"id":    identity.UserID,
				"email": identity.Email,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type VerificationStartRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type VerificationConfirmRequest struct {
	Identifier string `json:"identifier"`
	Token      string `json:"token"`
}

type PasswordResetRequest struct {
	Identifier string `json:"identifier"`
	Token      string `json:"token"`
	Password   string `json:"password"`
}

// StartVerification issues a one-time token and queues the email.
// Always answers 202 so the endpoint does not reveal which addresses
// are registered.
func (h *AuthHandler) StartVerification(w http.ResponseWriter, r *http.Request) {
	var req VerificationStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return
	}
	if req.Purpose == "" {
		req.Purpose = notify.PurposeEmailVerify
	}

	if _, err := h.authService.StartVerification(r.Context(), req.Email, req.Purpose); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start verification")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ConfirmVerification consumes a one-time token.
func (h *AuthHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var req VerificationConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.authService.ConfirmVerification(r.Context(), req.Identifier, req.Token); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to confirm verification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword consumes a reset token and replaces the password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Identifier, req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func authResponse(user types.User, session types.Session) AuthResponse {
	return AuthResponse{
		SessionToken: session.Token,
		Expires:      session.Expires.UTC().Format(time.RFC3339),
		User:         user,
	}
}
