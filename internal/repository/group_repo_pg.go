package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"celulas/membership/internal/model"
)

type pgGroupRepository struct {
	db *gorm.DB
}

func NewPGGroupRepository(db *gorm.DB) GroupRepository {
	return &pgGroupRepository{db: db}
}

func (r *pgGroupRepository) Create(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *pgGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	var group model.Group
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *pgGroupRepository) List(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	err := r.db.WithContext(ctx).Order("name ASC").Find(&groups).Error
	return groups, err
}
