// Package privacy decides how much of a location a user discloses to friends.
// It is the only place privacy levels are turned into coordinates.
package privacy

import "github.com/HammerMeetNail/oasis/internal/models"

// Disclose maps a raw position through level. A nil pair means "do not
// reveal coordinates". Callers must additionally suppress the whole broadcast
// for PrivacyNone; Disclose only nulls the coordinates.
//
// CITY never falls back to the raw position: an unknown city discloses nil.
func Disclose(level models.PrivacyLevel, lat, lon float64, city, country string) (*float64, *float64) {
	switch level {
	case models.PrivacyRealtime:
		return &lat, &lon
	case models.PrivacyCity:
		center, ok := CityCenter(city, country)
		if !ok {
			return nil, nil
		}
		cLat, cLon := center.Lat, center.Lon
		return &cLat, &cLon
	default:
		return nil, nil
	}
}
