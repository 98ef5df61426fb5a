package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const (
	defaultCodeLength   = 6
	defaultCodeAttempts = 5
)

var ErrCodeSpaceExhausted = errors.New("could not allocate a free match code")

type matchRepo interface {
	Create(ctx context.Context, match *entity.Match) error
	GetByCode(ctx context.Context, code string) (*entity.Match, error)
	Update(ctx context.Context, code string, mutate func(match *entity.Match) error) (*entity.Match, error)
}

// notifier receives every committed match state.
type notifier interface {
	Publish(ctx context.Context, match *entity.Match) error
}

type CodeGenerator func(length int) (string, error)

type MatchOptions struct {
	CodeLength   int
	CodeAttempts int
}

type MatchManager struct {
	logger *slog.Logger

	matchRepo matchRepo
	notifier  notifier
	genCode   CodeGenerator
	options   MatchOptions
}

func NewMatchManager(logger *slog.Logger, matchRepo matchRepo, notifier notifier, genCode CodeGenerator, options MatchOptions) *MatchManager {
	if options.CodeLength <= 0 {
		options.CodeLength = defaultCodeLength
	}

	if options.CodeAttempts <= 0 {
		options.CodeAttempts = defaultCodeAttempts
	}

	return &MatchManager{
		logger: logger.With("component", "match_manager"),

		matchRepo: matchRepo,
		notifier:  notifier,
		genCode:   genCode,
		options:   options,
	}
}

// CreateMatch opens a match for playerID under a fresh code, retrying on code collisions.
func (that *MatchManager) CreateMatch(ctx context.Context, playerID string) (*entity.Match, error) {
	log := that.logger.With("method", "CreateMatch", "playerID", playerID)

	for attempt := 0; attempt < that.options.CodeAttempts; attempt++ {
		code, err := that.genCode(that.options.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate match code: %w", err)
		}

		match := entity.NewMatch(code, playerID)

		err = that.matchRepo.Create(ctx, match)
		if errors.Is(err, apperror.ErrMatchCodeTaken) {
			log.Debug("match code collision", "code", code, "attempt", attempt)
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create match: %w", err)
		}

		log.Info("match created", "code", code)
		that.publish(ctx, match)

		return match, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, that.options.CodeAttempts)
}

func (that *MatchManager) JoinMatch(ctx context.Context, code, playerID string) (*entity.Match, error) {
	match, err := that.matchRepo.Update(ctx, code, func(match *entity.Match) error {
		return match.Join(playerID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join match: %w", err)
	}

	that.logger.Info("player joined match", "method", "JoinMatch", "code", code, "playerID", playerID)
	that.publish(ctx, match)

	return match, nil
}

func (that *MatchManager) MakeMove(ctx context.Context, code, playerID string, position int) (*entity.Match, error) {
	match, err := that.matchRepo.Update(ctx, code, func(match *entity.Match) error {
		return match.ApplyMove(playerID, position)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to make move: %w", err)
	}

	if match.IsFinished() {
		that.logger.Info("match finished", "method", "MakeMove", "code", code, "winner", match.Winner)
	}

	that.publish(ctx, match)

	return match, nil
}

func (that *MatchManager) GetMatch(ctx context.Context, code string) (*entity.Match, error) {
	match, err := that.matchRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

// publish never undoes a committed match.
func (that *MatchManager) publish(ctx context.Context, match *entity.Match) {
	if that.notifier == nil {
		return
	}

	if err := that.notifier.Publish(ctx, match); err != nil {
		that.logger.Warn("failed to publish match update", "code", match.Code, "error", err)
	}
}
