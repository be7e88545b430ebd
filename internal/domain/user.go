package domain

import "time"

// Role is the numeric role id carried by users and realtime sessions.
type Role int16

const (
	RoleOwner      Role = 1
	RoleAgent      Role = 2
	RoleSupervisor Role = 3
	RoleEmployee   Role = 4
	RoleCustomer   Role = 5
)

// IsAgent reports whether the role qualifies for ticket assignment.
// Agents and supervisors both take tickets.
func (r Role) IsAgent() bool {
	return r == RoleAgent || r == RoleSupervisor
}

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is a company-scoped account: owner, agent, employee or end-customer,
// differentiated by Role.
type User struct {
	ID           int64
	CompanyID    int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
