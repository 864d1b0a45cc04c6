package domain

import "time"

// Role is the authority tier supplied by the identity collaborator.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleEmployee   Role = "EMPLOYEE"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleEmployee:
		return true
	}
	return false
}

// Unrestricted reports whether the role may edit any field and override conflicts.
func (r Role) Unrestricted() bool {
	return r == RoleSuperAdmin
}

// Restricted reports whether the role edits a bounded field subset under version checks.
func (r Role) Restricted() bool {
	return r == RoleAdmin
}

// Privileged roles start watermarked at the current version.
func (r Role) Privileged() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// User is an identity known to the floor together with its watermark.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	Role              Role      `json:"role"`
	LastSyncedVersion int64     `json:"last_synced_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SeesLive reports whether a reader with this watermark sees live data at current.
func (u *User) SeesLive(current int64) bool {
	return u == nil || u.LastSyncedVersion == 0 || u.LastSyncedVersion == current
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
