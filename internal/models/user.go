package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a user's access level
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleFarmer Role = "farmer"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFarmer, RoleViewer:
		return true
	}
	return false
}

// User is an account that can sign in to the dashboard
// Convention: Go PascalCase -> DB snake_case (GORM auto) -> JSON snake_case
type User struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserName  string     `gorm:"not null" json:"user_name"`
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"not null" json:"-"`
	Role      Role       `gorm:"size:16;not null;default:'farmer'" json:"role"`
	Phone     string     `json:"phone,omitempty"`
	IsActive  bool       `gorm:"not null" json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`

	Farm *Farm `gorm:"foreignKey:UserID" json:"farm,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when none was set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
