package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role separates applicants/donors from the staff triage pool.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
)

// IsStaff reports whether the role belongs to the shared staff pool.
func (r Role) IsStaff() bool { return r == RoleStaff }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleStaff }

// User is an account that can participate in a chat room.
// Authentication lives elsewhere; this record only carries what the chat
// layer needs: a stable identifier, a display name and a role.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:64;not null" json:"username"`
	Role      Role      `gorm:"type:text;not null;default:user;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate - хук GORM, який викликається перед створенням запису.
// Генерує UUID, якщо ID порожній, і встановлює роль за замовчуванням.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return
}
