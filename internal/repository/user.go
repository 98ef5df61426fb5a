package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type dbUser struct {
	client *redis.Client
}

func NewUserRepository(client *redis.Client) UserRepository {
	return &dbUser{
		client: client,
	}
}

func (that *dbUser) Create(ctx context.Context, user *entity.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	created, err := that.client.SetNX(ctx, "user:"+user.Email, userJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set user: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: %s", apperror.ErrUserAlreadyExists, user.Email)
	}

	return nil
}

func (that *dbUser) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	response, err := that.client.Get(ctx, "user:"+email).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("user %s: %w", email, apperror.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	var existingUser entity.User
	if err = json.Unmarshal([]byte(response), &existingUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &existingUser, nil
}
