package service

import (
	"context"

	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/repository"
)

type UserService interface {
	GetUserInfo(ctx context.Context, id int64) (*models.User, error)
	RemoveUser(ctx context.Context, userID int64) error
}

type userService struct {
	u repository.UserRepository
}

func NewUserService(u repository.UserRepository) UserService {
	return &userService{
		u: u,
	}
}

func (s *userService) GetUserInfo(ctx context.Context, id int64) (*models.User, error) {
	user, isExist, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get user", Err: err}
	}
	if !isExist {
		return nil, &apperr.NotFoundError{Resource: "user"}
	}

	return user, nil
}

func (s *userService) RemoveUser(ctx context.Context, userID int64) error {
	if err := s.u.Remove(ctx, userID); err != nil {
		return &apperr.PersistenceError{Op: "remove user", Err: err}
	}
	return nil
}
