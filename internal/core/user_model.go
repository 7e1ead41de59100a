package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	UserStatusActive   = "Active"
	UserStatusInactive = "Inactive"

	RoleAdmin     = "Admin"
	RoleFinance   = "Finance"
	RoleWarehouse = "Warehouse"
	RoleSales     = "Sales"
	RoleHR        = "HR"
	RoleUser      = "User"
)

// User is an authenticated system user. PasswordHash never leaves the server.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         string     `db:"role" json:"role"`
	Status       string     `db:"status" json:"status"`
	LastLogin    *time.Time `db:"last_login" json:"last_login"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// UserService provides registration, credential checks and lookup.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (User, error)

	// Authenticate verifies credentials, stamps last_login and returns the user.
	// Unknown users, wrong passwords and inactive accounts all return ErrUnauthorized.
	Authenticate(ctx context.Context, username, password string) (User, error)

	GetByID(ctx context.Context, id uuid.UUID) (User, error)

	// EnsureAdmin creates an Admin user when the users table is empty.
	// It reports whether a user was created.
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
}

// rolePermissions maps a role to its grants. A grant is "<module>:<action>" where
// either side may be "*".
var rolePermissions = map[string][]string{
	RoleAdmin:     {"*"},
	RoleFinance:   {"finance:*", "sales:read", "purchasing:read"},
	RoleWarehouse: {"inventory:*", "purchasing:*"},
	RoleSales:     {"sales:*", "inventory:read", "credit:read"},
	RoleHR:        {"hr:*"},
}

// HasPermission reports whether role may perform action ("read" or "write") on module.
func HasPermission(role, module, action string) bool {
	grants, ok := rolePermissions[role]
	if !ok {
		grants = []string{"*:read"}
	}
	for _, g := range grants {
		if g == "*" {
			return true
		}
		gm, ga, _ := strings.Cut(g, ":")
		if (gm == "*" || gm == module) && (ga == "*" || ga == action) {
			return true
		}
	}
	return false
}
