package models

import (
	"time"
)

// Friendship is one materialized direction of the symmetric friend relation.
// Both (a,b) and (b,a) exist or neither does.
type Friendship struct {
	UserID    string    `json:"userId"`
	FriendID  string    `json:"friendId"`
	CreatedAt time.Time `json:"created_at"`
}

type FriendSummary struct {
	UserID  string  `json:"userId"`
	Name    string  `json:"name"`
	City    *string `json:"city"`
	Country *string `json:"country"`
	Online  bool    `json:"online"`
}
