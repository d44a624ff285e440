package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLon := (lon2 - lon1) * (math.Pi / 180.0)

	lat1 = lat1 * (math.Pi / 180.0)
	lat2 = lat2 * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// FormatDistance renders meters below one kilometer and tenths of a
// kilometer above.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1fkm", km)
}

// ProximityCheck is one disclosed position of a sender, checked against the
// stored positions of the sender's friends.
type ProximityCheck struct {
	SenderID   string
	SenderName string
	Latitude   float64
	Longitude  float64
	FriendIDs  []string
}

type locationReader interface {
	GetLocation(ctx context.Context, userID string) (*models.LocationRecord, error)
}

type userReader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type ProximityService struct {
	locations locationReader
	users     userReader
	cache     RedisClient
	notifier  Notifier
	radiusKm  float64
	cooldown  time.Duration
	logger    *logging.Logger
}

func NewProximityService(locations locationReader, users userReader, cache RedisClient, notifier Notifier, radiusKm float64, cooldown time.Duration, logger *logging.Logger) *ProximityService {
	if logger == nil {
		logger = logging.Default
	}
	return &ProximityService{
		locations: locations,
		users:     users,
		cache:     cache,
		notifier:  notifier,
		radiusKm:  radiusKm,
		cooldown:  cooldown,
		logger:    logger,
	}
}

// Check alerts every friend whose stored position lies within the radius of
// the sender's disclosed position, at most once per cooldown window per
// (friend, sender). Per-friend failures are logged and skipped. It returns the
// number of alerts sent.
func (s *ProximityService) Check(ctx context.Context, check ProximityCheck) int {
	sent := 0
	for _, friendID := range check.FriendIDs {
		ok, err := s.checkOne(ctx, check, friendID)
		if err != nil {
			s.logger.Warn("Proximity check failed", map[string]interface{}{
				"error":     err.Error(),
				"sender_id": check.SenderID,
				"friend_id": friendID,
			})
			continue
		}
		if ok {
			sent++
		}
	}
	return sent
}

func (s *ProximityService) checkOne(ctx context.Context, check ProximityCheck, friendID string) (bool, error) {
	loc, err := s.locations.GetLocation(ctx, friendID)
	if errors.Is(err, ErrLocationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	distance := DistanceKm(check.Latitude, check.Longitude, loc.Latitude, loc.Longitude)
	if distance > s.radiusKm {
		return false, nil
	}

	key := ""
	if s.cache != nil && s.cooldown > 0 {
		key = cooldownKey(friendID, check.SenderID)
		first, err := s.cache.SetNX(ctx, key, "1", s.cooldown)
		if err != nil {
			return false, fmt.Errorf("proximity cooldown: %w", err)
		}
		if !first {
			return false, nil
		}
	}

	recipient, err := s.users.GetUser(ctx, friendID)
	if err != nil {
		s.releaseCooldown(ctx, key)
		return false, fmt.Errorf("loading recipient: %w", err)
	}

	alert := ProximityAlert{
		RecipientID:    recipient.ID,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		SenderID:       check.SenderID,
		SenderName:     check.SenderName,
		DistanceKm:     distance,
	}
	if err := s.notifier.NotifyProximity(ctx, alert); err != nil {
		s.releaseCooldown(ctx, key)
		return false, fmt.Errorf("sending proximity alert: %w", err)
	}
	return true, nil
}

// releaseCooldown drops a claimed key so an alert that was never delivered
// does not hold the cooldown.
func (s *ProximityService) releaseCooldown(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.cache.Del(ctx, key); err != nil {
		s.logger.Warn("Failed to release proximity cooldown", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func cooldownKey(recipientID, senderID string) string {
	return "proximity:" + recipientID + ":" + senderID
}
