// Package model defines the data structures shared by the repository,
// service and handler layers.
package model

import "time"

// User is a registered account.
//
// PasswordHash carries the `json:"-"` tag so a User can be written straight
// into a response without ever leaking the hash. Accounts created through
// GitHub sign-in have an empty PasswordHash; bcrypt rejects an empty hash,
// so password login fails closed for them.
//
// GitHubID is a pointer because most accounts never link GitHub and the
// column is NULL for them (SQLite allows many NULLs under a UNIQUE index).
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
