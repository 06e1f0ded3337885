package domain

import "time"

type User struct {
	ID             string
	Email          string
	Name           string
	EmailVerified  bool
	IsAdmin        bool
	IsActive       bool
	CreatedAt      time.Time
	LastLoginAt    *time.Time
	SessionExpires *time.Time
}

// UserProfile is the projection served to the account pages.
type UserProfile struct {
	ID                      string `json:"_id"`
	Email                   string `json:"email"`
	Name                    string `json:"name"`
	EmailVerified           bool   `json:"user_email_verified"`
	IsAdmin                 bool   `json:"user_is_admin"`
	AccountActive           bool   `json:"user_account_is_active"`
	AccountCreatedTimestamp int64  `json:"account_created_timestamp"`
	LastLoginTimestamp      *int64 `json:"last_login_timestamp"`
	Expires                 *int64 `json:"expires"`
}

func (u User) Profile() UserProfile {
	p := UserProfile{
		ID:                      u.ID,
		Email:                   u.Email,
		Name:                    u.Name,
		EmailVerified:           u.EmailVerified,
		IsAdmin:                 u.IsAdmin,
		AccountActive:           u.IsActive,
		AccountCreatedTimestamp: u.CreatedAt.Unix(),
	}
	if u.LastLoginAt != nil {
		ts := u.LastLoginAt.Unix()
		p.LastLoginTimestamp = &ts
	}
	if u.SessionExpires != nil {
		ts := u.SessionExpires.Unix()
		p.Expires = &ts
	}
	return p
}
