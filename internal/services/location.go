package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/oasis/internal/models"
)

// LocationService keeps the single latest location per user and serves the
// friend snapshot read.
type LocationService struct {
	db DB
}

func NewLocationService(db DB) *LocationService {
	return &LocationService{db: db}
}

func (s *LocationService) GetLocation(ctx context.Context, userID string) (*models.LocationRecord, error) {
	loc := &models.LocationRecord{}
	err := s.db.QueryRow(ctx,
		`SELECT user_id, latitude, longitude, city, country, updated_at
		 FROM locations WHERE user_id = $1`,
		userID,
	).Scan(&loc.UserID, &loc.Latitude, &loc.Longitude, &loc.City, &loc.Country, &loc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return loc, nil
}

// UpsertLocation overwrites the user's record and stamps it with the current
// time.
func (s *LocationService) UpsertLocation(ctx context.Context, userID string, update models.LocationUpdate) (*models.LocationRecord, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	loc := &models.LocationRecord{}
	err := s.db.QueryRow(ctx,
		`INSERT INTO locations (user_id, latitude, longitude, city, country, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET latitude = EXCLUDED.latitude,
		     longitude = EXCLUDED.longitude,
		     city = EXCLUDED.city,
		     country = EXCLUDED.country,
		     updated_at = EXCLUDED.updated_at
		 RETURNING user_id, latitude, longitude, city, country, updated_at`,
		userID, update.Latitude, update.Longitude, nullIfBlank(update.City), nullIfBlank(update.Country),
	).Scan(&loc.UserID, &loc.Latitude, &loc.Longitude, &loc.City, &loc.Country, &loc.UpdatedAt)
	if isForeignKeyViolation(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("upserting location: %w", err)
	}
	return loc, nil
}

// ListFriendLocations reads every friend of userID with their privacy level
// and stored location in one statement. Friends without a location have a nil
// Location.
func (s *LocationService) ListFriendLocations(ctx context.Context, userID string) ([]models.FriendLocation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT u.user_id, u.name, u.privacy_level,
		        l.latitude, l.longitude, l.city, l.country, l.updated_at
		 FROM friendships f
		 JOIN users u ON u.user_id = f.friend_id
		 LEFT JOIN locations l ON l.user_id = u.user_id
		 WHERE f.user_id = $1
		 ORDER BY u.name, u.user_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friend locations: %w", err)
	}
	defer rows.Close()

	var out []models.FriendLocation
	for rows.Next() {
		var (
			fl        models.FriendLocation
			lat, lon  *float64
			city      *string
			country   *string
			updatedAt *time.Time
		)
		if err := rows.Scan(&fl.User.ID, &fl.User.Name, &fl.User.PrivacyLevel, &lat, &lon, &city, &country, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning friend location: %w", err)
		}
		if lat != nil && lon != nil {
			fl.Location = &models.LocationRecord{
				UserID:    fl.User.ID,
				Latitude:  *lat,
				Longitude: *lon,
				City:      city,
				Country:   country,
			}
			if updatedAt != nil {
				fl.Location.UpdatedAt = *updatedAt
			}
		}
		out = append(out, fl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friend locations: %w", err)
	}
	return out, nil
}

func nullIfBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
