package models

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidCoordinates = errors.New("latitude and longitude required")

// LocationRecord is the single latest known position of a user.
type LocationRecord struct {
	UserID    string    `json:"userId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	City      *string   `json:"city"`
	Country   *string   `json:"country"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationUpdate is an inbound position report. Empty City/Country are stored
// as NULL.
type LocationUpdate struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

func (u LocationUpdate) Validate() error {
	if math.IsNaN(u.Latitude) || math.IsNaN(u.Longitude) ||
		math.IsInf(u.Latitude, 0) || math.IsInf(u.Longitude, 0) {
		return ErrInvalidCoordinates
	}
	if u.Latitude < -90 || u.Latitude > 90 || u.Longitude < -180 || u.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// FriendLocation is one row of the snapshot read: a friend and, if they have
// ever reported one, their stored location.
type FriendLocation struct {
	User     User
	Location *LocationRecord
}

// DisclosedLocation is the privacy-filtered view of a user's location that is
// sent to their friends. It is never stored.
type DisclosedLocation struct {
	UserID       string       `json:"userId"`
	Name         string       `json:"name"`
	PrivacyLevel PrivacyLevel `json:"privacy_level"`
	Latitude     *float64     `json:"latitude"`
	Longitude    *float64     `json:"longitude"`
	City         *string      `json:"city"`
	Country      *string      `json:"country"`
	Timestamp    time.Time    `json:"timestamp"`
}
