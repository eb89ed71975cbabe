package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
)

// Provisioner applies a redeemed role to a profile. It runs only after a
// successful redemption and never undoes one. It never lowers a role.
type Provisioner interface {
	Provision(ctx context.Context, userID uuid.UUID, role model.Role, groupID *uuid.UUID) error
}

type provisioner struct {
	userRepo  repository.UserRepository
	groupRepo repository.GroupRepository
}

func NewProvisioner(userRepo repository.UserRepository, groupRepo repository.GroupRepository) Provisioner {
	return &provisioner{userRepo: userRepo, groupRepo: groupRepo}
}

func (p *provisioner) Provision(ctx context.Context, userID uuid.UUID, role model.Role, groupID *uuid.UUID) error {
	if !role.Invitable() {
		return ErrInvalidRole
	}
	// Pastors oversee every group and carry no affiliation.
	if !role.RequiresGroup() {
		groupID = nil
	}

	user, err := p.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if user.Role.Outranks(role) {
		return ErrRoleDowngrade
	}

	if groupID != nil {
		if _, err := p.groupRepo.GetByID(ctx, *groupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("load group: %w", err)
		}
	}

	leadGroup := role == model.RoleLeader && groupID != nil
	if err := p.userRepo.AssignRole(ctx, userID, role, groupID, leadGroup); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

var _ Provisioner = (*provisioner)(nil)
