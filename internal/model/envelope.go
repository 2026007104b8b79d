package model

type EnvelopeType string

const EnvelopeTypeWidget EnvelopeType = "widget_update"

// Envelope is transport-agnostic framing for stream payloads.
type Envelope struct {
	Type          EnvelopeType `json:"type"`
	ElementID     string       `json:"element_id"`
	Source        Source       `json:"source"`
	TimestampUnix int64        `json:"timestamp_unix"`
	Payload       any          `json:"payload"`
}

func NewWidgetEnvelope(elementID string, r MetricResult) Envelope {
	return Envelope{
		Type:          EnvelopeTypeWidget,
		ElementID:     elementID,
		Source:        r.Source,
		TimestampUnix: r.ResolvedAt.Unix(),
		Payload:       r.Value,
	}
}
