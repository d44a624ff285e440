package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/services"
)

type userStore interface {
	Register(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type locationGetter interface {
	GetLocation(ctx context.Context, userID string) (*models.LocationRecord, error)
}

type privacySetter interface {
	SetPrivacyLevel(ctx context.Context, userID string, level models.PrivacyLevel) (models.PrivacyLevel, error)
}

type UserHandler struct {
	users     userStore
	locations locationGetter
	privacy   privacySetter
}

func NewUserHandler(users userStore, locations locationGetter, privacy privacySetter) *UserHandler {
	return &UserHandler{users: users, locations: locations, privacy: privacy}
}

type RegisterRequest struct {
	UserID      string  `json:"userId"`
	Name        string  `json:"name"`
	Nationality *string `json:"nationality"`
	Gender      *string `json:"gender"`
	Email       *string `json:"email"`
}

type UserProfileResponse struct {
	UserID       string              `json:"userId"`
	Name         string              `json:"name"`
	Nationality  *string             `json:"nationality"`
	Gender       *string             `json:"gender"`
	PrivacyLevel models.PrivacyLevel `json:"privacy_level"`
	Latitude     *float64            `json:"latitude"`
	Longitude    *float64            `json:"longitude"`
	City         string              `json:"city"`
	Country      string              `json:"country"`
	Timestamp    *time.Time          `json:"timestamp"`
}

type UpdatePrivacyRequest struct {
	PrivacyLevel string `json:"privacy_level"`
}

type UpdatePrivacyResponse struct {
	Success      bool                `json:"success"`
	PrivacyLevel models.PrivacyLevel `json:"privacy_level"`
	Previous     models.PrivacyLevel `json:"previous_privacy_level"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), models.CreateUserParams{
		ID:          req.UserID,
		Name:        req.Name,
		Nationality: req.Nationality,
		Gender:      req.Gender,
		Email:       req.Email,
	})
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, "userId and name are required")
		return
	case errors.Is(err, services.ErrUserAlreadyExists):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case err != nil:
		logging.Error("Error registering user", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logging.Info("User registered", map[string]interface{}{"user_id": user.ID})
	writeJSON(w, http.StatusOK, user)
}

// Get returns the user together with their own undisclosed last location.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		logging.Error("Error fetching user", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := UserProfileResponse{
		UserID:       user.ID,
		Name:         user.Name,
		Nationality:  user.Nationality,
		Gender:       user.Gender,
		PrivacyLevel: user.PrivacyLevel,
	}

	loc, err := h.locations.GetLocation(r.Context(), userID)
	switch {
	case errors.Is(err, services.ErrLocationNotFound):
	case err != nil:
		logging.Error("Error fetching user location", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	default:
		lat, lon, ts := loc.Latitude, loc.Longitude, loc.UpdatedAt
		resp.Latitude = &lat
		resp.Longitude = &lon
		resp.Timestamp = &ts
		if loc.City != nil {
			resp.City = *loc.City
		}
		if loc.Country != nil {
			resp.Country = *loc.Country
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req UpdatePrivacyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	level, err := models.ParsePrivacyLevel(req.PrivacyLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	previous, err := h.privacy.SetPrivacyLevel(r.Context(), userID, level)
	if errors.Is(err, services.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil && previous == "" {
		logging.Error("Error updating privacy level", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err != nil {
		// The level is stored; only the cleared broadcast failed.
		logging.Warn("Privacy level stored but friends were not cleared", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
	}

	logging.Info("Privacy level updated", map[string]interface{}{
		"user_id":  userID,
		"from":     string(previous),
		"to":       string(level),
		"disabled": level == models.PrivacyNone,
	})
	writeJSON(w, http.StatusOK, UpdatePrivacyResponse{
		Success:      true,
		PrivacyLevel: level,
		Previous:     previous,
	})
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
