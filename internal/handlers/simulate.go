package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/privacy"
	"github.com/HammerMeetNail/oasis/internal/services"
)

type userGetter interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// SimulateHandler moves a user to a random known city. It is only routed
// when test routes are enabled.
type SimulateHandler struct {
	users     userGetter
	publisher locationPublisher
	pick      func(n int) int
}

func NewSimulateHandler(users userGetter, publisher locationPublisher) *SimulateHandler {
	return &SimulateHandler{users: users, publisher: publisher, pick: rand.IntN}
}

type SimulateMoveRequest struct {
	UserID string `json:"userId"`
}

type SimulatedLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

type SimulateMoveResponse struct {
	Success   bool              `json:"success"`
	UserID    string            `json:"userId"`
	Location  SimulatedLocation `json:"location"`
	Delivered int               `json:"delivered"`
	Message   string            `json:"message"`
}

func (h *SimulateHandler) MoveFriend(w http.ResponseWriter, r *http.Request) {
	var req SimulateMoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID := trimmed(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if _, err := h.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logging.Error("Error loading user for simulated move", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	cities := privacy.KnownCities()
	city := cities[h.pick(len(cities))]
	loc := SimulatedLocation{
		Latitude:  city.Center.Lat,
		Longitude: city.Center.Lon,
		City:      city.Name,
		Country:   city.Country,
	}

	result, err := h.publisher.PublishLocation(r.Context(), userID, models.LocationUpdate{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		City:      loc.City,
		Country:   loc.Country,
	})
	if err != nil {
		logging.Error("Error simulating move", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logging.Debug("Simulated friend move", map[string]interface{}{"user_id": userID, "city": city.Name})
	writeJSON(w, http.StatusOK, SimulateMoveResponse{
		Success:   true,
		UserID:    userID,
		Location:  loc,
		Delivered: result.Delivered,
		Message:   fmt.Sprintf("%s moved to %s, %s", userID, city.Name, city.Country),
	})
}
