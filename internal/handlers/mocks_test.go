package handlers

import (
	"context"

	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/realtime"
	"github.com/HammerMeetNail/oasis/internal/services"
)

type mockUserService struct {
	RegisterFunc func(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetUserFunc  func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserService) Register(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, params)
	}
	return &models.User{ID: params.ID, Name: params.Name, PrivacyLevel: models.DefaultPrivacyLevel}, nil
}

func (m *mockUserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return nil, services.ErrUserNotFound
}

type mockLocationService struct {
	GetLocationFunc         func(ctx context.Context, userID string) (*models.LocationRecord, error)
	ListFriendLocationsFunc func(ctx context.Context, userID string) ([]models.FriendLocation, error)
}

func (m *mockLocationService) GetLocation(ctx context.Context, userID string) (*models.LocationRecord, error) {
	if m.GetLocationFunc != nil {
		return m.GetLocationFunc(ctx, userID)
	}
	return nil, services.ErrLocationNotFound
}

func (m *mockLocationService) ListFriendLocations(ctx context.Context, userID string) ([]models.FriendLocation, error) {
	if m.ListFriendLocationsFunc != nil {
		return m.ListFriendLocationsFunc(ctx, userID)
	}
	return nil, nil
}

type mockFriendService struct {
	AddFriendshipFunc    func(ctx context.Context, a, b string) error
	RemoveFriendshipFunc func(ctx context.Context, a, b string) error
}

func (m *mockFriendService) AddFriendship(ctx context.Context, a, b string) error {
	if m.AddFriendshipFunc != nil {
		return m.AddFriendshipFunc(ctx, a, b)
	}
	return nil
}

func (m *mockFriendService) RemoveFriendship(ctx context.Context, a, b string) error {
	if m.RemoveFriendshipFunc != nil {
		return m.RemoveFriendshipFunc(ctx, a, b)
	}
	return nil
}

// mockEngine stands in for the fan-out engine.
type mockEngine struct {
	PublishLocationFunc func(ctx context.Context, userID string, update models.LocationUpdate) (realtime.MulticastResult, error)
	SnapshotFunc        func(ctx context.Context, userID string) ([]models.DisclosedLocation, error)
	SetPrivacyLevelFunc func(ctx context.Context, userID string, level models.PrivacyLevel) (models.PrivacyLevel, error)
}

func (m *mockEngine) PublishLocation(ctx context.Context, userID string, update models.LocationUpdate) (realtime.MulticastResult, error) {
	if m.PublishLocationFunc != nil {
		return m.PublishLocationFunc(ctx, userID, update)
	}
	return realtime.MulticastResult{}, nil
}

func (m *mockEngine) Snapshot(ctx context.Context, userID string) ([]models.DisclosedLocation, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockEngine) SetPrivacyLevel(ctx context.Context, userID string, level models.PrivacyLevel) (models.PrivacyLevel, error) {
	if m.SetPrivacyLevelFunc != nil {
		return m.SetPrivacyLevelFunc(ctx, userID, level)
	}
	return models.PrivacyCity, nil
}

type onlineSet map[string]bool

func (s onlineSet) IsOnline(userID string) bool { return s[userID] }

func knownUser(id, name string, level models.PrivacyLevel) func(ctx context.Context, got string) (*models.User, error) {
	return func(ctx context.Context, got string) (*models.User, error) {
		if got != id {
			return nil, services.ErrUserNotFound
		}
		return &models.User{ID: id, Name: name, PrivacyLevel: level}, nil
	}
}
