package models

import (
	"sort"
	"time"
)

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRolePremium UserRole = "premium"
	UserRoleBasic   UserRole = "basic"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRolePremium, UserRoleBasic:
		return true
	}
	return false
}

// PagePermission grants access to one page and the named functions on it.
type PagePermission struct {
	Page      string   `json:"page"`
	Access    bool     `json:"access"`
	Functions []string `json:"functions"`
}

// Permissions is keyed by page identifier. It is stored as a JSON document.
type Permissions map[string]PagePermission

// List returns the grants ordered by page so responses are stable.
func (p Permissions) List() []PagePermission {
	out := make([]PagePermission, 0, len(p))
	for page, perm := range p {
		perm.Page = page
		if perm.Functions == nil {
			perm.Functions = []string{}
		}
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

func PermissionsFromList(list []PagePermission) Permissions {
	out := make(Permissions, len(list))
	for _, perm := range list {
		out[perm.Page] = perm
	}
	return out
}

// Allows reports whether the grant for page includes function.
func (p Permissions) Allows(page, function string) bool {
	perm, ok := p[page]
	if !ok || !perm.Access {
		return false
	}
	for _, fn := range perm.Functions {
		if fn == function {
			return true
		}
	}
	return false
}

// StarterPermissions is the grant set given to self-registered accounts.
func StarterPermissions() Permissions {
	return Permissions{
		"dashboard": {
			Page:      "dashboard",
			Access:    true,
			Functions: []string{"view"},
		},
		"exam-basic": {
			Page:      "exam-basic",
			Access:    true,
			Functions: []string{"view", "take_exam", "view_results"},
		},
	}
}

type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash []byte
	Role         UserRole
	Permissions  Permissions
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
