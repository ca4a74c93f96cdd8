// Package models holds the account types of the auth module.
package models

import (
	"time"

	id "securekyc/pkg/domain"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is what a successful login hands back.
type Session struct {
	AccessToken string
	ExpiresIn   time.Duration
	UserID      id.UserID
	Email       string
}
