package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/oasis/internal/models"
)

const userColumns = `user_id, name, nationality, gender, email, privacy_level, created_at, updated_at`

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

// Register creates a user with the default privacy level.
func (s *UserService) Register(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	params.ID = strings.TrimSpace(params.ID)
	params.Name = strings.TrimSpace(params.Name)
	if params.ID == "" || params.Name == "" {
		return nil, ErrInvalidUser
	}

	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (user_id, name, nationality, gender, email, privacy_level)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		params.ID, params.Name, params.Nationality, params.Gender, params.Email, models.DefaultPrivacyLevel,
	).Scan(userDest(user)...)
	if isUniqueViolation(err) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`,
		id,
	).Scan(userDest(user)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return user, nil
}

// UpdatePrivacyLevel stores level and returns the level it replaced. The row
// is locked for the read so concurrent changes observe each other's result.
func (s *UserService) UpdatePrivacyLevel(ctx context.Context, id string, level models.PrivacyLevel) (models.PrivacyLevel, error) {
	if !level.Valid() {
		return "", models.ErrInvalidPrivacyLevel
	}

	var previous models.PrivacyLevel
	err := withTx(ctx, s.db, "privacy update", func(tx Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT privacy_level FROM users WHERE user_id = $1 FOR UPDATE`,
			id,
		).Scan(&previous)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("loading privacy level: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET privacy_level = $1, updated_at = NOW() WHERE user_id = $2`,
			level, id,
		); err != nil {
			return fmt.Errorf("updating privacy level: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func userDest(u *models.User) []any {
	return []any{&u.ID, &u.Name, &u.Nationality, &u.Gender, &u.Email, &u.PrivacyLevel, &u.CreatedAt, &u.UpdatedAt}
}
