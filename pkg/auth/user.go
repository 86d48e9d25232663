package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/minucst/portal/pkg/auth/codes"
)

// User is the registry entry for one access code.
type User struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Role         codes.Role `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsBlocked    bool       `json:"is_blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// redacted returns a copy of u without its access code.
func (u *User) redacted() *User {
	c := u.clone()
	c.Code = ""

	return c
}

func (u *User) clone() *User {
	c := *u

	if u.BlockedUntil != nil {
		t := *u.BlockedUntil
		c.BlockedUntil = &t
	}

	if u.LastActivity != nil {
		t := *u.LastActivity
		c.LastActivity = &t
	}

	return &c
}

// users indexes the fixed user set by code and by id. It is guarded by the
// service mutex.
type users struct {
	order  []*User
	byCode map[string]*User
	byID   map[string]*User
}

func newUsers(all []string, now time.Time) *users {
	u := &users{
		order:  make([]*User, 0, len(all)),
		byCode: make(map[string]*User, len(all)),
		byID:   make(map[string]*User, len(all)),
	}

	for _, code := range all {
		user := &User{
			ID:        uuid.NewString(),
			Code:      code,
			Role:      codes.RoleOf(code),
			CreatedAt: now,
		}

		u.order = append(u.order, user)
		u.byCode[code] = user
		u.byID[user.ID] = user
	}

	return u
}
