package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"celulas/membership/internal/model"
)

type pgUserRepository struct {
	db *gorm.DB
}

func NewPGUserRepository(db *gorm.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.UserIdentity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		identity.UserID = user.ID
		return tx.Create(identity).Error
	})
}

func (r *pgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUserRepository) AssignRole(ctx context.Context, userID uuid.UUID, role model.Role, groupID *uuid.UUID, leadGroup bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"role":     role,
				"group_id": groupID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		// A user leads at most one group.
		vacate := tx.Model(&model.Group{}).Where("leader_id = ?", userID)
		if leadGroup && groupID != nil {
			vacate = vacate.Where("id <> ?", *groupID)
		}
		if err := vacate.Update("leader_id", nil).Error; err != nil {
			return err
		}

		if !leadGroup || groupID == nil {
			return nil
		}
		var group model.Group
		if err := tx.First(&group, "id = ?", *groupID).Error; err != nil {
			return err
		}
		// The outgoing leader stays in the group as co-leader.
		if group.LeaderID != nil && *group.LeaderID != userID {
			err := tx.Model(&model.User{}).
				Where("id = ? AND role = ? AND group_id = ?", *group.LeaderID, model.RoleLeader, *groupID).
				Update("role", model.RoleCoLeader).Error
			if err != nil {
				return err
			}
		}
		res = tx.Model(&model.Group{}).
			Where("id = ?", *groupID).
			Update("leader_id", userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
