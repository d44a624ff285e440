package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HammerMeetNail/oasis/internal/models"
)

const (
	FrameLocationUpdate = "location_update"
	FramePing           = "ping"

	FrameConnected      = "connected"
	FrameSync           = "sync"
	FrameFriendLocation = "friend_location"
	FramePong           = "pong"
	FrameError          = "error"
)

var errMalformedFrame = errors.New("invalid message format")

type ConnectedFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type SyncFrame struct {
	Type    string                     `json:"type"`
	Friends []models.DisclosedLocation `json:"friends"`
}

type FriendLocationFrame struct {
	Type string `json:"type"`
	models.DisclosedLocation
}

type PongFrame struct {
	Type string `json:"type"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func connectedFrame(userID string) ConnectedFrame {
	return ConnectedFrame{Type: FrameConnected, UserID: userID}
}

func syncFrame(friends []models.DisclosedLocation) SyncFrame {
	if friends == nil {
		friends = []models.DisclosedLocation{}
	}
	return SyncFrame{Type: FrameSync, Friends: friends}
}

func friendLocationFrame(d models.DisclosedLocation) FriendLocationFrame {
	return FriendLocationFrame{Type: FrameFriendLocation, DisclosedLocation: d}
}

func errorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

func encodeFrame(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// inboundFrame holds every client field; coordinates stay raw until the
// frame type is known.
type inboundFrame struct {
	Type      string          `json:"type"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	City      string          `json:"city"`
	Country   string          `json:"country"`
}

func decodeFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, errMalformedFrame
	}
	return f, nil
}

// locationUpdate extracts a validated update. Missing, null or non-numeric
// coordinates are rejected.
func (f inboundFrame) locationUpdate() (models.LocationUpdate, error) {
	lat, ok := parseCoordinate(f.Latitude)
	if !ok {
		return models.LocationUpdate{}, models.ErrInvalidCoordinates
	}
	lon, ok := parseCoordinate(f.Longitude)
	if !ok {
		return models.LocationUpdate{}, models.ErrInvalidCoordinates
	}

	update := models.LocationUpdate{
		Latitude:  lat,
		Longitude: lon,
		City:      f.City,
		Country:   f.Country,
	}
	if err := update.Validate(); err != nil {
		return models.LocationUpdate{}, err
	}
	return update, nil
}

func parseCoordinate(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}
