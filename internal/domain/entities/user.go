package entities

import (
	"strings"
	"time"
)

// Role is a user's authorization role
type Role string

const (
	RoleLabTechnician Role = "Lab Technician"
	RolePathologist   Role = "Pathologist"
	RoleResident      Role = "Resident"
	RoleAdmin         Role = "Admin"
)

// ParseRole normalizes a role name, accepting legacy aliases.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lab technician", "technician", "lab_technician":
		return RoleLabTechnician, true
	case "pathologist":
		return RolePathologist, true
	case "resident":
		return RoleResident, true
	case "admin", "administrator":
		return RoleAdmin, true
	}
	return "", false
}

// IsPrivileged reports whether the role may act on any sample.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RolePathologist
}

// User represents an account in the system
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	Department    string     `json:"department,omitempty"`
	LicenseNumber string     `json:"licenseNumber,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	IsActive      bool       `json:"isActive"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Actor is the authenticated principal performing an operation
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

// HasRole reports whether the actor holds any of the given roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
