package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"celulas/membership/internal/model"
)

// InvitationCodeFilter narrows List. Zero values match everything.
type InvitationCodeFilter struct {
	Role         model.Role
	ActiveOnly   bool
	RedeemableAt *time.Time
	Limit        int
}

type InvitationCodeRepository interface {
	Create(ctx context.Context, code *model.InvitationCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.InvitationCode, error)
	// GetActiveByCode matches code exactly and only among active rows.
	GetActiveByCode(ctx context.Context, code string) (*model.InvitationCode, error)
	List(ctx context.Context, filter InvitationCodeFilter) ([]model.InvitationCode, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// Redeem consumes one use slot with a single conditional update evaluated
	// by the store and appends a redemption record in the same transaction.
	// It returns a nil record, with a nil error, when the predicate no longer
	// holds.
	Redeem(ctx context.Context, id, redeemerID uuid.UUID, now time.Time) (*model.InvitationRedemption, error)
	ListRedemptions(ctx context.Context, codeID uuid.UUID) ([]model.InvitationRedemption, error)
	// MarkUnprovisioned flags a redemption whose role was never applied.
	MarkUnprovisioned(ctx context.Context, redemptionID uuid.UUID) error
}
