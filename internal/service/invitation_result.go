package service

import (
	"github.com/google/uuid"

	"celulas/membership/internal/model"
)

// Reason explains why a code is not redeemable. The empty Reason means valid.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotFound           Reason = "not_found"
	ReasonInactive           Reason = "inactive"
	ReasonExpired            Reason = "expired"
	ReasonExhausted          Reason = "exhausted"
	ReasonNoLongerRedeemable Reason = "no_longer_redeemable"
)

// Err maps every failure reason onto ErrInvitationUnavailable.
func (r Reason) Err() error {
	if r == ReasonNone {
		return nil
	}
	return ErrInvitationUnavailable
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "ok"
	}
	return string(r)
}

// ValidationResult is the advisory answer to "can this code be redeemed now".
type ValidationResult struct {
	Code   *model.InvitationCode
	Reason Reason
}

func (v *ValidationResult) Valid() bool { return v.Reason == ReasonNone }

// RedemptionResult is authoritative: Success means a use slot was consumed.
type RedemptionResult struct {
	CodeID       uuid.UUID
	RedemptionID uuid.UUID
	Role         model.Role
	GroupID      *uuid.UUID
	Reason       Reason
}

func (r *RedemptionResult) Success() bool { return r.Reason == ReasonNone }
