package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/privacy"
	"github.com/HammerMeetNail/oasis/internal/services"
)

const unknownPlace = "Unknown"

type LocationStore interface {
	UpsertLocation(ctx context.Context, userID string, update models.LocationUpdate) (*models.LocationRecord, error)
}

type FriendGraph interface {
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdatePrivacyLevel(ctx context.Context, id string, level models.PrivacyLevel) (models.PrivacyLevel, error)
}

// SnapshotSource reads every friend of a user together with their stored
// location in a single query.
type SnapshotSource interface {
	ListFriendLocations(ctx context.Context, userID string) ([]models.FriendLocation, error)
}

type ProximityChecker interface {
	Check(ctx context.Context, check services.ProximityCheck) int
}

type taskSubmitter interface {
	TrySubmit(task Task) bool
}

type EngineDeps struct {
	Locations LocationStore
	Friends   FriendGraph
	Users     UserDirectory
	Snapshots SnapshotSource
	Registry  *Registry
	// Proximity and Pool are optional; alerts are skipped without them.
	Proximity ProximityChecker
	Pool      taskSubmitter
	Logger    *logging.Logger
}

// Engine persists location updates and pushes the privacy-filtered result
// to every online friend.
type Engine struct {
	locations LocationStore
	friends   FriendGraph
	users     UserDirectory
	snapshots SnapshotSource
	registry  *Registry
	proximity ProximityChecker
	pool      taskSubmitter
	logger    *logging.Logger
	now       func() time.Time

	// senders serializes publishes and level changes of the same user so a
	// frame built under an old level never reaches friends after the
	// cleared frame.
	senders *userLocks

	proximityTimeout time.Duration
}

func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default
	}
	return &Engine{
		locations:        deps.Locations,
		friends:          deps.Friends,
		users:            deps.Users,
		snapshots:        deps.Snapshots,
		registry:         deps.Registry,
		proximity:        deps.Proximity,
		pool:             deps.Pool,
		logger:           logger,
		now:              time.Now,
		senders:          newUserLocks(),
		proximityTimeout: 10 * time.Second,
	}
}

// PublishLocation stores the update for userID and multicasts it to online
// friends. The sender's privacy level is read after the write so a level
// change applies to the very next update. Nothing is sent at level none.
// The level read and the multicast happen under the sender's lock, shared
// with SetPrivacyLevel.
func (e *Engine) PublishLocation(ctx context.Context, userID string, update models.LocationUpdate) (MulticastResult, error) {
	if err := update.Validate(); err != nil {
		return MulticastResult{}, err
	}

	unlock := e.senders.Lock(userID)
	defer unlock()

	record, err := e.locations.UpsertLocation(ctx, userID, update)
	if err != nil {
		return MulticastResult{}, fmt.Errorf("storing location: %w", err)
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return MulticastResult{}, fmt.Errorf("loading sender: %w", err)
	}
	if user.PrivacyLevel == models.PrivacyNone || !user.PrivacyLevel.Valid() {
		e.logger.Debug("Location sharing disabled, broadcast suppressed", map[string]interface{}{
			"user_id": userID,
		})
		return MulticastResult{}, nil
	}

	city, country := derefOr(record.City, ""), derefOr(record.Country, "")
	lat, lon := privacy.Disclose(user.PrivacyLevel, record.Latitude, record.Longitude, city, country)
	disclosed := discloseView(user, record, lat, lon)

	friendIDs, err := e.friends.GetFriendIDs(ctx, userID)
	if err != nil {
		return MulticastResult{}, fmt.Errorf("loading friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return MulticastResult{}, nil
	}

	data, err := encodeFrame(friendLocationFrame(disclosed))
	if err != nil {
		return MulticastResult{}, err
	}
	result := e.registry.Multicast(friendIDs, data)

	if lat != nil && lon != nil {
		e.scheduleProximity(services.ProximityCheck{
			SenderID:   userID,
			SenderName: user.Name,
			Latitude:   *lat,
			Longitude:  *lon,
			FriendIDs:  friendIDs,
		})
	}
	return result, nil
}

// SetPrivacyLevel stores the new level. On a transition into none, friends
// receive one cleared frame so stale markers disappear. It returns the
// previous level.
func (e *Engine) SetPrivacyLevel(ctx context.Context, userID string, level models.PrivacyLevel) (models.PrivacyLevel, error) {
	unlock := e.senders.Lock(userID)
	defer unlock()

	previous, err := e.users.UpdatePrivacyLevel(ctx, userID, level)
	if err != nil {
		return "", err
	}
	if level != models.PrivacyNone || previous == models.PrivacyNone {
		return previous, nil
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return previous, fmt.Errorf("loading user: %w", err)
	}
	friendIDs, err := e.friends.GetFriendIDs(ctx, userID)
	if err != nil {
		return previous, fmt.Errorf("loading friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return previous, nil
	}

	data, err := encodeFrame(friendLocationFrame(models.DisclosedLocation{
		UserID:       user.ID,
		Name:         user.Name,
		PrivacyLevel: models.PrivacyNone,
		Timestamp:    e.now().UTC(),
	}))
	if err != nil {
		return previous, err
	}
	result := e.registry.Multicast(friendIDs, data)
	e.logger.Info("Location sharing disabled, friends cleared", map[string]interface{}{
		"user_id":   userID,
		"delivered": result.Delivered,
	})
	return previous, nil
}

// Snapshot returns the disclosed locations of userID's friends. Friends at
// level none and friends with no stored location are omitted.
func (e *Engine) Snapshot(ctx context.Context, userID string) ([]models.DisclosedLocation, error) {
	rows, err := e.snapshots.ListFriendLocations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading friend locations: %w", err)
	}

	out := make([]models.DisclosedLocation, 0, len(rows))
	for _, row := range rows {
		if row.Location == nil || row.User.PrivacyLevel == models.PrivacyNone || !row.User.PrivacyLevel.Valid() {
			continue
		}
		loc := row.Location
		lat, lon := privacy.Disclose(row.User.PrivacyLevel, loc.Latitude, loc.Longitude, derefOr(loc.City, ""), derefOr(loc.Country, ""))
		user := row.User
		out = append(out, discloseView(&user, loc, lat, lon))
	}
	return out, nil
}

func (e *Engine) scheduleProximity(check services.ProximityCheck) {
	if e.proximity == nil || e.pool == nil {
		return
	}
	ok := e.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.proximityTimeout)
		defer cancel()
		e.proximity.Check(ctx, check)
	})
	if !ok {
		e.logger.Warn("Proximity check dropped, worker queue full", map[string]interface{}{
			"user_id": check.SenderID,
		})
	}
}

func discloseView(user *models.User, loc *models.LocationRecord, lat, lon *float64) models.DisclosedLocation {
	city := derefOr(loc.City, unknownPlace)
	country := derefOr(loc.Country, unknownPlace)
	return models.DisclosedLocation{
		UserID:       user.ID,
		Name:         user.Name,
		PrivacyLevel: user.PrivacyLevel,
		Latitude:     lat,
		Longitude:    lon,
		City:         &city,
		Country:      &country,
		Timestamp:    loc.UpdatedAt.UTC(),
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
