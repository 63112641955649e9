package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/trail-data-etl/internal/config"
	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

// Publisher announces catalog updates on a Kafka topic so downstream
// consumers (search indexers, notification services) can react without
// polling the database. It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured catalog topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishTrails serializes and publishes reconciled trails in a single
// WriteMessages call. Messages are keyed by trail ID so updates to the same
// trail land on the same partition in order.
func (p *Publisher) PublishTrails(ctx context.Context, trails []domain.Trail) error {
	if len(trails) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(trails))
	for i := range trails {
		msg, err := serializeToMessage(trails[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// trailEvent is the wire format for a catalog update.
type trailEvent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	AreaID      string    `json:"area_id"`
	AreaName    string    `json:"area_name,omitempty"`
	LengthMiles *float64  `json:"length_miles,omitempty"`
	Difficulty  *string   `json:"difficulty,omitempty"`
	TrailType   *string   `json:"trail_type,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	RefURL      *string   `json:"ref_url,omitempty"`
	Source      string    `json:"source"`
	LastSynced  time.Time `json:"last_synced"`
}

// serializeToMessage marshals a trail into a Kafka message.
func serializeToMessage(t domain.Trail) (kafkago.Message, error) {
	event := trailEvent{
		ID:          t.ID,
		Name:        t.Name,
		Region:      t.RegionCode,
		AreaID:      t.AreaID,
		AreaName:    t.AreaName,
		LengthMiles: t.LengthMiles,
		TrailType:   t.TrailType,
		Lat:         t.Lat,
		Lon:         t.Lon,
		RefURL:      t.RefURL,
		Source:      t.Source,
		LastSynced:  t.LastSynced,
	}
	if t.Difficulty != nil {
		d := string(*t.Difficulty)
		event.Difficulty = &d
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trail event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(t.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(t.RegionCode)},
			{Key: "source", Value: []byte(t.Source)},
		},
	}, nil
}
