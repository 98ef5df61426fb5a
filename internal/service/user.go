package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

type UserService interface {
	SignUp(ctx context.Context, email, password string) (*entity.User, error)
	Authenticate(ctx context.Context, email, password string) (*entity.User, error)
}

type userRepo interface {
	Create(ctx context.Context, user *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type userService struct {
	userRepo     userRepo
	passwordCost int
}

func NewUserService(userRepo userRepo, passwordCost int) UserService {
	if passwordCost < bcrypt.MinCost || passwordCost > bcrypt.MaxCost {
		passwordCost = bcrypt.DefaultCost
	}

	return &userService{
		userRepo:     userRepo,
		passwordCost: passwordCost,
	}
}

func (that *userService) SignUp(ctx context.Context, email, password string) (*entity.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), that.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		Email:        entity.NormalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err = that.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("could not save user: %w", err)
	}

	return user, nil
}

func (that *userService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	user, err := that.userRepo.GetByEmail(ctx, entity.NormalizeEmail(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ErrInvalidCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("could not get user by email: %w", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	return user, nil
}
