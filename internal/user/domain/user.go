package domain

import (
	"errors"
	"time"
)

// UserType distinguishes room seekers, property owners and staff.
type UserType string

const (
	UserTypeUser  UserType = "user"
	UserTypeOwner UserType = "owner"
	UserTypeAdmin UserType = "admin"
)

// Profile is the directory entry shown next to a session. It is display data only; the role
// claim in the session token is what authorization reads.
type Profile struct {
	ID           string // identity provider subject
	Email        string
	FullName     string
	BusinessName string // owners only
	UserType     UserType
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the profile for persistence and fills the default user type.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	switch p.UserType {
	case "":
		p.UserType = UserTypeUser
	case UserTypeUser, UserTypeAdmin:
	case UserTypeOwner:
		if p.BusinessName == "" {
			return errors.New("business name is required for owners")
		}
	default:
		return errors.New("unknown user type")
	}
	return nil
}
