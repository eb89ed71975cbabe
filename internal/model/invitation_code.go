package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvitationCode grants Role to whoever redeems it, at most MaxUses times and
// only before ExpiresAt. Rows are never reused or soft-deleted, so the unique
// index on Code spans inactive and expired codes too.
type InvitationCode struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Role        Role       `gorm:"type:varchar(16);not null" json:"role"`
	Description string     `gorm:"type:varchar(255);not null;default:''" json:"description"`
	GroupID     *uuid.UUID `gorm:"type:uuid;index" json:"group_id,omitempty"`
	MaxUses     int        `gorm:"not null;check:chk_invitation_codes_max_uses,max_uses >= 1" json:"max_uses"`
	CurrentUses int        `gorm:"not null;default:0;check:chk_invitation_codes_current_uses,current_uses >= 0 AND current_uses <= max_uses" json:"current_uses"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	UsedBy      *uuid.UUID `gorm:"type:uuid" json:"used_by,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (InvitationCode) TableName() string { return "invitation_codes" }

func (c *InvitationCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Expired reports whether now is at or past ExpiresAt.
func (c *InvitationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Exhausted reports whether every use slot has been consumed.
func (c *InvitationCode) Exhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

// Redeemable mirrors the predicate of the conditional update that consumes a
// slot. It is advisory: only the store's update decides a redemption.
func (c *InvitationCode) Redeemable(now time.Time) bool {
	return c.IsActive && !c.Expired(now) && !c.Exhausted()
}

// RemainingUses never reports a negative count.
func (c *InvitationCode) RemainingUses() int {
	if c.Exhausted() {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}

// InvitationRedemption records one consumed slot. The code row only keeps
// the last redeemer; this table keeps all of them. Provisioned turns false
// when the redeemer kept the fallback role.
type InvitationRedemption struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CodeID      uuid.UUID `gorm:"type:uuid;not null;index" json:"code_id"`
	RedeemerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"redeemer_id"`
	RedeemedAt  time.Time `gorm:"not null" json:"redeemed_at"`
	Provisioned bool      `gorm:"not null;default:true" json:"provisioned"`
}

func (InvitationRedemption) TableName() string { return "invitation_redemptions" }

func (r *InvitationRedemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
