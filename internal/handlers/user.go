package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beacon-site/apiserver/internal/services"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxAvatarBytes     = 5 << 20
	formFieldAvatar    = "avatar"
	maxMultipartMemory = 8 << 20
)

// UserHandler provides profile and admin user endpoints.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes. All routes require authentication;
// listing additionally requires the admin role.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Use(RequireAuth)
	r.With(handler.requireAdmin).Get("/", handler.ListUsers)
	r.Patch("/me", handler.UpdateProfile)
	r.Delete("/me", handler.DeleteAccount)
	r.Post("/me/avatar", handler.UploadAvatar)
	r.Get("/me/avatar", handler.GetAvatar)
	r.Post("/me/accounts", handler.LinkAccount)
	r.Delete("/me/accounts/{provider}/{providerAccountID}", handler.UnlinkAccount)
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
}

// UpdateProfile applies a partial update to the caller's profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Name == nil && req.Username == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	user, err := h.userService.Update(r.Context(), identity.UserID, types.UserPatch{
		Name:     req.Name,
		Username: req.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar stores the caller's avatar image.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing avatar file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "avatar must be an image")
		return
	}

	user, err := h.userService.SaveAvatar(r.Context(), identity.UserID, file, header.Size, contentType)
	if err != nil {
		if errors.Is(err, services.ErrStorageUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// GetAvatar streams the caller's stored avatar image.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.UserID)
	if err != nil || user.AvatarKey == nil {
		writeError(w, http.StatusNotFound, "no avatar")
		return
	}

	object, err := h.userService.OpenAvatar(r.Context(), *user.AvatarKey)
	if err != nil {
		if errors.Is(err, services.ErrStorageUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read avatar")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, object)
}

// DeleteAccount removes the caller's account. Linked provider accounts
// and sessions go with it via the cascade.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	if err := h.userService.Delete(r.Context(), identity.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type LinkAccountRequest struct {
	Provider          string     `json:"provider"`
	ProviderAccountID string     `json:"provider_account_id"`
	AccessToken       *string    `json:"access_token"`
	RefreshToken      *string    `json:"refresh_token"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// LinkAccount associates an external provider account with the caller.
func (h *UserHandler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	var req LinkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	req.ProviderAccountID = strings.TrimSpace(req.ProviderAccountID)
	if req.Provider == "" || req.ProviderAccountID == "" {
		writeError(w, http.StatusBadRequest, "missing provider or provider account id")
		return
	}

	err = h.userService.LinkAccount(r.Context(), types.Account{
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		UserID:            identity.UserID,
		AccessToken:       req.AccessToken,
		RefreshToken:      req.RefreshToken,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "provider account already linked")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to link account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlinkAccount removes an external provider account association. Only
// the owning user may unlink it; unlinking an absent association is a
// no-op.
func (h *UserHandler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	identity, err := MustIdentity(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
		return
	}

	provider := chi.URLParam(r, "provider")
	providerAccountID := chi.URLParam(r, "providerAccountID")

	owner, err := h.userService.GetUserByAccount(r.Context(), provider, providerAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unlink account")
		return
	}
	if owner.ID != identity.UserID {
		writeError(w, http.StatusForbidden, "account linked to another user")
		return
	}

	if err := h.userService.UnlinkAccount(r.Context(), provider, providerAccountID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unlink account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type UserListResponse struct {
	Users []types.User `json:"users"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// ListUsers returns a paginated user listing for admins.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", defaultPage)
	limit := queryInt(r, "limit", defaultLimit)
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	users, total, err := h.userService.List(r.Context(), (page-1)*limit, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Users: users,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// requireAdmin loads the caller's record and rejects non-admins.
func (h *UserHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := MustIdentity(r.Context())
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, err.Error(), CodeUnauthenticated)
			return
		}

		user, err := h.userService.GetByID(r.Context(), identity.UserID)
		if err != nil || user.Role != types.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
