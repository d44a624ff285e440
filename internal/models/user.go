package models

import (
	"time"
)

type User struct {
	ID           string       `json:"userId"`
	Name         string       `json:"name"`
	Nationality  *string      `json:"nationality,omitempty"`
	Gender       *string      `json:"gender,omitempty"`
	Email        *string      `json:"email,omitempty"`
	PrivacyLevel PrivacyLevel `json:"privacy_level"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type CreateUserParams struct {
	ID          string
	Name        string
	Nationality *string
	Gender      *string
	Email       *string
}
