package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/realtime"
	"github.com/HammerMeetNail/oasis/internal/services"
)

type locationPublisher interface {
	PublishLocation(ctx context.Context, userID string, update models.LocationUpdate) (realtime.MulticastResult, error)
}

// LocationHandler accepts position reports over REST. They take the same
// path through the fan-out engine as WebSocket location_update frames.
type LocationHandler struct {
	publisher locationPublisher
}

func NewLocationHandler(publisher locationPublisher) *LocationHandler {
	return &LocationHandler{publisher: publisher}
}

type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
}

type UpdateLocationResponse struct {
	Success   bool `json:"success"`
	Delivered int  `json:"delivered"`
}

func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req UpdateLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	result, err := h.publisher.PublishLocation(r.Context(), userID, models.LocationUpdate{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		City:      trimmed(req.City),
		Country:   trimmed(req.Country),
	})
	switch {
	case errors.Is(err, models.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logging.Error("Error updating location", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UpdateLocationResponse{Success: true, Delivered: result.Delivered})
}
