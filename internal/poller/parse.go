package poller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"sitepulse/internal/model"
)

var (
	errMissingField = errors.New("missing field")
	errWrongType    = errors.New("wrong type")
	errOutOfRange   = errors.New("out of range")
)

// ParserFor returns the body parser for a target kind.
func ParserFor(kind model.TargetKind) (model.Parser, error) {
	switch kind {
	case model.KindCount:
		return ParseCount, nil
	case model.KindStatus:
		return ParseStatus, nil
	case model.KindReviews:
		return ParseReviews, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", kind)
	}
}

// ParseCount accepts {"count": <integer>} with a non-negative count that fits int64.
func ParseCount(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	raw, ok := payload["count"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("count: %w", errMissingField)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return nil, fmt.Errorf("count: %w: %T", errWrongType, raw)
	}
	if n, err := num.Int64(); err == nil {
		if n < 0 {
			return nil, fmt.Errorf("count: %w: %d", errOutOfRange, n)
		}
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("count: %w: %s", errWrongType, num.String())
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f < 0 || f >= float64(math.MaxInt64) {
		return nil, fmt.Errorf("count: %w: %s", errOutOfRange, num.String())
	}
	return int64(f), nil
}

// ParseStatus accepts {"emoji","color","text"}, all non-empty.
func ParseStatus(body []byte) (any, error) {
	var st model.LiveStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	st.Emoji = strings.TrimSpace(st.Emoji)
	st.Color = strings.ToLower(strings.TrimSpace(st.Color))
	st.Text = strings.TrimSpace(st.Text)
	if st.Emoji == "" || st.Color == "" || st.Text == "" {
		return nil, fmt.Errorf("status: %w", errMissingField)
	}
	return st, nil
}

// ParseReviews accepts {"reviews": [...], "hasMore": bool}.
func ParseReviews(body []byte) (any, error) {
	var payload struct {
		Reviews *[]model.Review `json:"reviews"`
		model.ReviewPage
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Reviews == nil {
		return nil, fmt.Errorf("reviews: %w", errMissingField)
	}
	page := payload.ReviewPage
	page.Reviews = *payload.Reviews
	return page, nil
}
