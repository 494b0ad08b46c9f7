// Package models defines server-side data models persisted in the database.
package models

import "time"

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusDeleted   Status = "DELETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended || s == StatusDeleted
}

// User is the full identity record, including the password digest.
// It must never be serialized to a client; use Public instead.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Status       Status

	LoginFailures

	EmailVerificationHash      *string
	EmailVerificationExpiresAt *time.Time
	EmailVerifiedAt            *time.Time

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// LoginFailures is the lockout state stored on the user row.
type LoginFailures struct {
	FailedLogins      int
	LastFailedLoginAt *time.Time
	LockedUntil       *time.Time
}

// LockedAt reports whether the lock is still in force at now. A lock
// whose moment has passed counts as unset.
func (f LoginFailures) LockedAt(now time.Time) bool {
	return f.LockedUntil != nil && f.LockedUntil.After(now)
}

// PublicUser is the projection handed to callers. It has no field for the
// password digest or for token digests.
type PublicUser struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            Role       `json:"role"`
	Status          Status     `json:"status"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Public projects u onto PublicUser.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		Status:          u.Status,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// UserUpdate lists the administrator-editable fields; nil means unchanged.
type UserUpdate struct {
	Name   *string
	Email  *string
	Role   *Role
	Status *Status
}

// Empty reports whether no field is set.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil && u.Status == nil
}

// UserFilter narrows a user listing. Page is 1-based.
type UserFilter struct {
	Page     int
	PageSize int
	Search   string
	Status   Status
	Role     Role
}

// Offset is the number of rows skipped before the page starts.
func (f UserFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
