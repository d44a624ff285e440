package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/services"
)

type friendStore interface {
	AddFriendship(ctx context.Context, a, b string) error
	RemoveFriendship(ctx context.Context, a, b string) error
}

type friendLocationLister interface {
	ListFriendLocations(ctx context.Context, userID string) ([]models.FriendLocation, error)
}

type friendSnapshotter interface {
	Snapshot(ctx context.Context, userID string) ([]models.DisclosedLocation, error)
}

type presence interface {
	IsOnline(userID string) bool
}

type FriendHandler struct {
	friends   friendStore
	listing   friendLocationLister
	snapshots friendSnapshotter
	presence  presence
}

func NewFriendHandler(friends friendStore, listing friendLocationLister, snapshots friendSnapshotter, presence presence) *FriendHandler {
	return &FriendHandler{
		friends:   friends,
		listing:   listing,
		snapshots: snapshots,
		presence:  presence,
	}
}

type AddFriendRequest struct {
	FriendID string `json:"friendId"`
}

// List returns every friend with their last known city and whether they have
// a live connection right now.
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	rows, err := h.listing.ListFriendLocations(r.Context(), userID)
	if err != nil {
		logging.Error("Error fetching friends", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	friends := make([]models.FriendSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.FriendSummary{
			UserID: row.User.ID,
			Name:   row.User.Name,
		}
		if row.Location != nil {
			summary.City = row.Location.City
			summary.Country = row.Location.Country
		}
		if h.presence != nil {
			summary.Online = h.presence.IsOnline(row.User.ID)
		}
		friends = append(friends, summary)
	}
	writeJSON(w, http.StatusOK, friends)
}

// Locations returns the same privacy-filtered list a sync frame carries.
func (h *FriendHandler) Locations(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	locations, err := h.snapshots.Snapshot(r.Context(), userID)
	if err != nil {
		logging.Error("Error fetching friend locations", map[string]interface{}{"error": err.Error(), "user_id": userID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if locations == nil {
		locations = []models.DisclosedLocation{}
	}
	writeJSON(w, http.StatusOK, locations)
}

func (h *FriendHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req AddFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	friendID := trimmed(req.FriendID)
	if friendID == "" {
		writeError(w, http.StatusBadRequest, "friendId is required")
		return
	}

	err := h.friends.AddFriendship(r.Context(), userID, friendID)
	switch {
	case errors.Is(err, services.ErrCannotFriendSelf):
		writeError(w, http.StatusBadRequest, "Cannot add yourself as friend")
		return
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrFriendNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logging.Error("Error adding friend", map[string]interface{}{"error": err.Error(), "user_id": userID, "friend_id": friendID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)
	friendID := trimmed(r.PathValue("friendId"))
	if userID == "" || friendID == "" {
		writeError(w, http.StatusBadRequest, "userId and friendId are required")
		return
	}

	if err := h.friends.RemoveFriendship(r.Context(), userID, friendID); err != nil {
		logging.Error("Error removing friend", map[string]interface{}{"error": err.Error(), "user_id": userID, "friend_id": friendID})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
