// Package events publishes notifications about adjusted indents.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/config"
	"github.com/indentrecon/indentrecon/internal/models"
)

// TypeAdjustedIndentCreated is the event type emitted after an adjusted
// indent is committed.
const TypeAdjustedIndentCreated = "adjusted_indent.created"

// AdjustedIndentCreated is the JSON payload of an adjusted indent event.
type AdjustedIndentCreated struct {
	Type             string      `json:"type"`
	RunID            string      `json:"run_id"`
	SourceIndentID   string      `json:"source_indent_id"`
	AdjustedIndentID string      `json:"adjusted_indent_id"`
	Route            string      `json:"route"`
	Date             string      `json:"date"`
	Lines            []EventLine `json:"lines"`
	CreatedAt        time.Time   `json:"created_at"`
}

// EventLine is one shortfall line of an adjusted indent.
type EventLine struct {
	SKU      string          `json:"sku"`
	UOM      string          `json:"uom,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Crates   int64           `json:"crates"`
	Loose    decimal.Decimal `json:"loose"`
}

// NewAdjustedIndentCreated builds the event for an adjusted indent.
func NewAdjustedIndentCreated(runID string, adjusted *models.Indent) AdjustedIndentCreated {
	ev := AdjustedIndentCreated{
		Type:             TypeAdjustedIndentCreated,
		RunID:            runID,
		AdjustedIndentID: adjusted.ID,
		Route:            adjusted.Route,
		Date:             adjusted.Date.Format(models.DateLayout),
		CreatedAt:        adjusted.CreatedAt,
	}
	if adjusted.SourceIndentID != nil {
		ev.SourceIndentID = *adjusted.SourceIndentID
	}
	for _, l := range adjusted.Lines {
		ev.Lines = append(ev.Lines, EventLine{
			SKU:      l.SKU,
			UOM:      l.UOM,
			Quantity: l.RequestedQty,
			Crates:   l.Crates,
			Loose:    l.Loose,
		})
	}
	return ev
}

// Publisher delivers adjusted indent events.
type Publisher interface {
	Publish(ctx context.Context, ev AdjustedIndentCreated) error
	Close() error
}

// KafkaPublisher publishes events to a Kafka topic, keyed by source indent
// so every event for one indent lands on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaPublisher creates a synchronous publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev AdjustedIndentCreated) error {
	b, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SourceIndentID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// LogPublisher writes events to a logger instead of a broker.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev AdjustedIndentCreated) error {
	p.logger.Info("event",
		"type", ev.Type,
		"source_indent_id", ev.SourceIndentID,
		"adjusted_indent_id", ev.AdjustedIndentID,
		"lines", len(ev.Lines),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, AdjustedIndentCreated) error { return nil }
func (Nop) Close() error                                         { return nil }

// FromConfig picks a Kafka publisher when events are enabled and a log
// publisher otherwise.
func FromConfig(cfg config.EventsConfig, logger *slog.Logger) Publisher {
	if cfg.Enabled && len(cfg.Brokers) > 0 {
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	}
	return NewLogPublisher(logger)
}
