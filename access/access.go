package access

import (
	"slices"
	"strings"

	scriptdesk "github.com/goliatone/go-scriptdesk"
)

// Role is one of the two fixed roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Capability names a permission flag held by a user.
type Capability string

const (
	RunScripts      Capability = "run_scripts"
	ApproveRequests Capability = "approve_requests"
	RerunScripts    Capability = "rerun_scripts"
)

// DefaultCapabilities returns the permission set a role starts with.
func DefaultCapabilities(role Role) []Capability {
	switch role {
	case RoleAdmin:
		return []Capability{RunScripts, ApproveRequests, RerunScripts}
	case RoleUser:
		return []Capability{RunScripts}
	default:
		return nil
	}
}

type User struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Permissions []Capability `json:"permissions"`
}

// Can is a plain membership test over the user's permissions.
func (u User) Can(c Capability) bool {
	return slices.Contains(u.Permissions, c)
}

// AutoApproves reports whether submissions from u skip the approval queue.
func (u User) AutoApproves() bool {
	return u.Can(RunScripts) && u.Can(ApproveRequests)
}

// SeesAll reports whether u may view executions requested by others.
func (u User) SeesAll() bool {
	return u.Role == RoleAdmin
}

func (u User) IsZero() bool {
	return u.ID == "" && u.Name == ""
}

// Roster is the static, ordered list of known users.
type Roster struct {
	users []User
}

func NewRoster(users ...User) *Roster {
	cp := make([]User, 0, len(users))
	for _, u := range users {
		cp = append(cp, u.clone())
	}
	return &Roster{users: cp}
}

func DefaultRoster() *Roster {
	return NewRoster(
		User{ID: "1", Name: "Admin User", Role: RoleAdmin, Permissions: DefaultCapabilities(RoleAdmin)},
		User{ID: "2", Name: "Regular User", Role: RoleUser, Permissions: DefaultCapabilities(RoleUser)},
	)
}

// Default is the first user in the roster.
func (r *Roster) Default() User {
	if r == nil || len(r.users) == 0 {
		return User{}
	}
	return r.users[0].clone()
}

func (r *Roster) Find(id string) (User, error) {
	id = strings.TrimSpace(id)
	if r != nil {
		for _, u := range r.users {
			if u.ID == id {
				return u.clone(), nil
			}
		}
	}
	return User{}, scriptdesk.CloneError(scriptdesk.ErrUserNotFound, "", nil, map[string]any{"user_id": id})
}

func (r *Roster) Users() []User {
	if r == nil {
		return nil
	}
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.clone())
	}
	return out
}

func (u User) clone() User {
	u.Permissions = slices.Clone(u.Permissions)
	return u
}
