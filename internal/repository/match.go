package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const (
	matchKeyPrefix = "match:"

	defaultUpdateAttempts = 10
)

type MatchRepository interface {
	Create(ctx context.Context, match *entity.Match) error
	GetByCode(ctx context.Context, code string) (*entity.Match, error)
	Update(ctx context.Context, code string, mutate func(match *entity.Match) error) (*entity.Match, error)
	DeleteByCode(ctx context.Context, code string) error
}

type MatchOptions struct {
	// FinishedTTL expires finished matches; zero keeps them forever.
	FinishedTTL    time.Duration
	UpdateAttempts int
}

type dbMatch struct {
	client  *redis.Client
	options MatchOptions
}

func NewMatchRepository(client *redis.Client, options MatchOptions) MatchRepository {
	if options.UpdateAttempts <= 0 {
		options.UpdateAttempts = defaultUpdateAttempts
	}

	return &dbMatch{
		client:  client,
		options: options,
	}
}

func matchKey(code string) string {
	return matchKeyPrefix + code
}

func (that *dbMatch) Create(ctx context.Context, match *entity.Match) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	created, err := that.client.SetNX(ctx, matchKey(match.Code), matchJSON, that.expiration(match)).Result()
	if err != nil {
		return fmt.Errorf("failed to set match: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: %s", apperror.ErrMatchCodeTaken, match.Code)
	}

	return nil
}

func (that *dbMatch) GetByCode(ctx context.Context, code string) (*entity.Match, error) {
	response, err := that.client.Get(ctx, matchKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("match %s: %w", code, apperror.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get match by code: %w", err)
	}

	return decodeMatch(response)
}

// Update runs mutate inside an optimistic WATCH/MULTI transaction on the match key.
// Nothing is written when mutate fails; a concurrent writer causes a retry.
func (that *dbMatch) Update(ctx context.Context, code string, mutate func(match *entity.Match) error) (*entity.Match, error) {
	key := matchKey(code)

	var updated *entity.Match

	txf := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("match %s: %w", code, apperror.ErrNotFound)
		}

		if err != nil {
			return fmt.Errorf("failed to get match by code: %w", err)
		}

		match, err := decodeMatch(response)
		if err != nil {
			return err
		}

		if err = mutate(match); err != nil {
			return err
		}

		matchJSON, err := json.Marshal(match)
		if err != nil {
			return fmt.Errorf("could not marshal match: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, matchJSON, that.expiration(match))
			return nil
		})
		if err != nil {
			return err //nolint: wrapcheck // redis.TxFailedErr is matched by the caller
		}

		updated = match

		return nil
	}

	for attempt := 0; attempt < that.options.UpdateAttempts; attempt++ {
		err := that.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("%w: %s", apperror.ErrConcurrentUpdate, code)
}

func (that *dbMatch) DeleteByCode(ctx context.Context, code string) error {
	deleted, err := that.client.Del(ctx, matchKey(code)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete match by code: %w", err)
	}

	if deleted == 0 {
		return fmt.Errorf("match %s: %w", code, apperror.ErrNotFound)
	}

	return nil
}

func (that *dbMatch) expiration(match *entity.Match) time.Duration {
	if match.IsFinished() {
		return that.options.FinishedTTL
	}

	return 0
}

func decodeMatch(data []byte) (*entity.Match, error) {
	var match entity.Match
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	if match.History == nil {
		match.History = []entity.MoveRecord{}
	}

	return &match, nil
}
