package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/kafka"
	"github.com/spf13/pflag"
)

func main() {
	defaults := config.DefaultConfig()

	// Command line flags
	brokers := pflag.StringSlice("brokers", defaults.Kafka.Brokers, "Kafka brokers (comma-separated)")
	topic := pflag.String("topic", defaults.Kafka.Topic, "Kafka topic")
	player := pflag.StringP("player", "p", "", "Discord id of the player")
	matchID := pflag.Int64("match", 0, "Match id the stats belong to (optional)")
	wins := pflag.Int64("wins", 0, "Wins to add")
	losses := pflag.Int64("losses", 0, "Losses to add")
	draws := pflag.Int64("draws", 0, "Draws to add")
	kills := pflag.Int64("kills", 0, "Kills to add")
	deaths := pflag.Int64("deaths", 0, "Deaths to add")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	event := domain.StatsEvent{
		DiscordID: *player,
		MatchID:   *matchID,
		Wins:      *wins,
		Losses:    *losses,
		Draws:     *draws,
		Kills:     *kills,
		Deaths:    *deaths,
	}
	if err := domain.ValidateDiscordID(event.DiscordID); err != nil {
		logger.Error("invalid --player", "error", err)
		os.Exit(2)
	}
	if err := event.Delta().Validate(); err != nil {
		logger.Error("invalid stats", "error", err)
		os.Exit(2)
	}

	producer, err := kafka.NewProducer(*brokers, *topic, logger)
	if err != nil {
		logger.Error("failed to create producer", "brokers", *brokers, "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	sent, err := producer.Publish(event)
	if err != nil {
		logger.Error("failed to publish stats event", "error", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Published %s for %s to %s\n", sent.EventID, sent.DiscordID, *topic)
}
