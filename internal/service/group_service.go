package service

import (
	"context"
	"fmt"
	"strings"

	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
)

type GroupService interface {
	Create(ctx context.Context, name string) (*model.Group, error)
	List(ctx context.Context) ([]model.Group, error)
}

type groupService struct {
	groupRepo repository.GroupRepository
}

func NewGroupService(groupRepo repository.GroupRepository) GroupService {
	return &groupService{groupRepo: groupRepo}
}

func (s *groupService) Create(ctx context.Context, name string) (*model.Group, error) {
	group := &model.Group{Name: strings.TrimSpace(name)}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrGroupExists
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

func (s *groupService) List(ctx context.Context) ([]model.Group, error) {
	return s.groupRepo.List(ctx)
}

var _ GroupService = (*groupService)(nil)
