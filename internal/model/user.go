package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStatus int

const (
	UserStatusActive   UserStatus = 1
	UserStatusDisabled UserStatus = 2
	UserStatusBanned   UserStatus = 3
)

// User is the member profile. Role starts at RoleMember and is raised by
// redeeming an invitation code.
type User struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string         `gorm:"type:varchar(320);uniqueIndex;not null" json:"email"`
	DisplayName string         `gorm:"type:varchar(128);not null;default:''" json:"display_name"`
	Role        Role           `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	GroupID     *uuid.UUID     `gorm:"type:uuid;index" json:"group_id,omitempty"`
	Status      UserStatus     `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Identities []UserIdentity `gorm:"foreignKey:UserID" json:"identities,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Status == 0 {
		u.Status = UserStatusActive
	}
	return nil
}
