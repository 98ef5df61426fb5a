package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const matchEventsChannel = "match:events"

// MatchEvents fans committed match states out over Redis pub/sub so every process sees every update.
type MatchEvents struct {
	logger *slog.Logger
	client *redis.Client
}

func NewMatchEvents(logger *slog.Logger, client *redis.Client) *MatchEvents {
	return &MatchEvents{
		logger: logger.With("component", "match_events"),
		client: client,
	}
}

func (that *MatchEvents) Publish(ctx context.Context, match *entity.Match) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	if err = that.client.Publish(ctx, matchEventsChannel, matchJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish match event: %w", err)
	}

	return nil
}

// Subscribe hands every published match to handle until ctx is cancelled.
func (that *MatchEvents) Subscribe(ctx context.Context, handle func(match *entity.Match)) error {
	log := that.logger.With("method", "Subscribe")

	pubsub := that.client.Subscribe(ctx, matchEventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to match events: %w", err)
	}

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			match, err := decodeMatch([]byte(msg.Payload))
			if err != nil {
				log.Warn("skipping malformed match event", "error", err)
				continue
			}

			handle(match)
		}
	}
}
