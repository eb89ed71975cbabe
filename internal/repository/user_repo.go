package repository

import (
	"context"

	"github.com/google/uuid"

	"celulas/membership/internal/model"
)

type UserRepository interface {
	// CreateWithIdentity inserts the profile and its first identity atomically.
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.UserIdentity) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// AssignRole writes role and group affiliation onto the profile. When
	// leadGroup is set the user also becomes the leader of groupID and the
	// outgoing leader drops to co-leader. Any other group the user led is
	// left without a leader.
	AssignRole(ctx context.Context, userID uuid.UUID, role model.Role, groupID *uuid.UUID, leadGroup bool) error
}
