package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/duel-lords/internal/domain"
)

// DecodeEvent parses and validates a stats event message
func DecodeEvent(data []byte) (domain.StatsEvent, error) {
	var event domain.StatsEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.StatsEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if err := domain.ValidateDiscordID(event.DiscordID); err != nil {
		return domain.StatsEvent{}, err
	}
	if err := event.Delta().Validate(); err != nil {
		return domain.StatsEvent{}, err
	}
	return event, nil
}

// EncodeEvent serialises a stats event for publishing
func EncodeEvent(event domain.StatsEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling stats event: %w", err)
	}
	return data, nil
}
