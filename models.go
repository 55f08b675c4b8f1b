package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle state
type UserStatus string

const (
	// UserStatusUnverified registered, activation pending
	UserStatusUnverified UserStatus = "unverified"
	// UserStatusActive can log in
	UserStatusActive UserStatus = "active"
	// UserStatusDeactivated can never log in
	UserStatusDeactivated UserStatus = "deactivated"
)

// User is the user model
type User struct {
	bun.BaseModel       `bun:"table:users,alias:usr"`
	ID                  uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email               string     `bun:"email,notnull,unique" json:"email"`
	Name                string     `bun:"name,notnull" json:"name"`
	Phone               string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash        string     `bun:"password_hash,notnull" json:"-"`
	Status              UserStatus `bun:"status,notnull" json:"status"`
	RequiresNewPassword bool       `bun:"requires_new_password,notnull" json:"requires_new_password"`
	LoggedInAt          *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	ActivatedAt         *time.Time `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	PasswordChangedAt   *time.Time `bun:"password_changed_at,nullzero" json:"password_changed_at,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

var _ Account = (*User)(nil)

func (u *User) GetID() uuid.UUID { return u.ID }

func (u *User) GetEmail() string { return u.Email }

func (u *User) GetName() string { return u.Name }

func (u *User) SetName(name string) { u.Name = name }

func (u *User) GetPasswordHash() string { return u.PasswordHash }

// SetPasswordHash also stamps PasswordChangedAt
func (u *User) SetPasswordHash(hash string) {
	u.PasswordHash = hash
	u.RequiresNewPassword = false
	now := time.Now()
	u.PasswordChangedAt = &now
}

func (u *User) GetStatus() UserStatus {
	u.EnsureStatus()
	return u.Status
}

// SetStatus also stamps ActivatedAt on the first activation
func (u *User) SetStatus(status UserStatus) {
	if status == UserStatusActive && u.ActivatedAt == nil {
		now := time.Now()
		u.ActivatedAt = &now
	}
	u.Status = status
}

// NewUser is the AccountBuilder for User
func NewUser(fields AccountFields) *User {
	return &User{
		ID:           fields.ID,
		Email:        fields.Email,
		Name:         fields.Name,
		Phone:        fields.Phone,
		PasswordHash: fields.PasswordHash,
		Status:       fields.Status,
	}
}

// EnsureStatus defaults an empty status to unverified
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusUnverified
	}
}

func (u *User) IsActive() bool { return u.GetStatus() == UserStatusActive }

func (u *User) IsDeactivated() bool { return u.GetStatus() == UserStatusDeactivated }

// Preference is a single user setting
type Preference struct {
	bun.BaseModel `bun:"table:user_preferences,alias:upref"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id"`
	Name          string     `bun:"name,pk" json:"name"`
	Value         string     `bun:"value,notnull" json:"value"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
