package stream

import (
	"context"
	"encoding/json"

	"sitepulse/internal/model"
)

// Sink forwards resolved widget cycles to a remote consumer.
type Sink interface {
	Publish(ctx context.Context, elementID string, r model.MetricResult) error
	Close(ctx context.Context) error
}

type WidgetFrame struct {
	ElementID     string       `json:"element_id"`
	Source        model.Source `json:"source"`
	TimestampUnix int64        `json:"timestamp_unix"`
	Value         any          `json:"value"`
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func NewWidgetFrame(elementID string, r model.MetricResult) WidgetFrame {
	return WidgetFrame{
		ElementID:     elementID,
		Source:        r.Source,
		TimestampUnix: r.ResolvedAt.Unix(),
		Value:         r.Value,
	}
}

// NopSink drops everything; it backs the "none" stream mode.
type NopSink struct{}

func (NopSink) Publish(context.Context, string, model.MetricResult) error { return nil }
func (NopSink) Close(context.Context) error                              { return nil }
