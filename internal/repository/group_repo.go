package repository

import (
	"context"

	"github.com/google/uuid"

	"celulas/membership/internal/model"
)

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Group, error)
	List(ctx context.Context) ([]model.Group, error)
}
