package repository

import (
	"context"

	"celulas/membership/internal/model"
)

type IdentityRepository interface {
	GetByTypeAndIdentifier(ctx context.Context, idType model.IdentityType, identifier string) (*model.UserIdentity, error)
}
