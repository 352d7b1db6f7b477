package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkerRecord is a node's durable identity row. It is created on first
// registration, refreshed by every heartbeat and never deleted; staleness is
// derived from LastSeen.
type WorkerRecord struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	Hostname     string    `json:"hostname"`
	LastSeen     time.Time `json:"lastSeen"`
	Capacity     int       `json:"capacity"`
	RestartCount int       `json:"restartCount"`
	Version      string    `json:"version"`
	Active       bool      `json:"active"`
}

// UserRole is the API collaborator's access level. The core never consults it.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleTenant   UserRole = "tenant"
	RoleOperator UserRole = "operator"
	RoleViewer   UserRole = "viewer"
)

// ParseUserRole parses the stored role column.
func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case RoleAdmin, RoleTenant, RoleOperator, RoleViewer:
		return UserRole(s), nil
	}
	return "", fmt.Errorf("%w: invalid role: %q", ErrInvalidInput, s)
}

// User is an operator account, managed by the API collaborator.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
