package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FriendService reads and mutates the symmetric friend relation. Both
// directions of an edge are always written and deleted together.
type FriendService struct {
	db DB
}

func NewFriendService(db DB) *FriendService {
	return &FriendService{db: db}
}

func (s *FriendService) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT friend_id FROM friendships WHERE user_id = $1 ORDER BY friend_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friend ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friend ids: %w", err)
	}
	return ids, nil
}

// AddFriendship links a and b in both directions. An existing edge is not an
// error.
func (s *FriendService) AddFriendship(ctx context.Context, a, b string) error {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return ErrCannotFriendSelf
	}

	return withTx(ctx, s.db, "add friendship", func(tx Tx) error {
		if err := lockUserPairForUpdate(ctx, tx, a, b); err != nil {
			var miss *missingUserError
			if !errors.As(err, &miss) {
				return fmt.Errorf("lock users: %w", err)
			}
			switch {
			case miss.UserID == a:
				return ErrUserNotFound
			case a < b:
				// a was locked before b turned up missing.
				return ErrFriendNotFound
			}
			return s.missingUser(ctx, tx, a)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO friendships (user_id, friend_id)
			 VALUES ($1, $2), ($2, $1)
			 ON CONFLICT (user_id, friend_id) DO NOTHING`,
			a, b,
		)
		if isForeignKeyViolation(err) {
			return ErrFriendNotFound
		}
		if err != nil {
			return fmt.Errorf("insert friendship: %w", err)
		}
		return nil
	})
}

// RemoveFriendship deletes both directions of the edge. Removing an edge that
// does not exist is a no-op.
func (s *FriendService) RemoveFriendship(ctx context.Context, a, b string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM friendships
		 WHERE (user_id = $1 AND friend_id = $2)
		    OR (user_id = $2 AND friend_id = $1)`,
		a, b,
	)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

// missingUser resolves whether a exists when the lock on b failed first.
func (s *FriendService) missingUser(ctx context.Context, q DBConn, userID string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrFriendNotFound
}
