package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// missingUserError reports which user a row lock found absent. It unwraps to
// pgx.ErrNoRows.
type missingUserError struct {
	UserID string
}

func (e *missingUserError) Error() string {
	return fmt.Sprintf("user %s not found", e.UserID)
}

func (e *missingUserError) Unwrap() error { return pgx.ErrNoRows }

// lockUserPairForUpdate takes FOR UPDATE locks on both user rows, lower id
// first, so two requests touching the same pair cannot deadlock. Locking
// stops at the first missing user.
func lockUserPairForUpdate(ctx context.Context, q DBConn, userA, userB string) error {
	ids := [2]string{userA, userB}
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	for i, id := range ids {
		if i == 1 && id == ids[0] {
			break
		}
		if err := lockUserForUpdate(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

func lockUserForUpdate(ctx context.Context, q DBConn, userID string) error {
	var locked string
	err := q.QueryRow(ctx, `SELECT user_id FROM users WHERE user_id = $1 FOR UPDATE`, userID).Scan(&locked)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return &missingUserError{UserID: userID}
	case err != nil:
		return fmt.Errorf("locking user %s: %w", userID, err)
	}
	return nil
}
