// Package display keeps the rendered state of every widget element the site
// reads from.
package display

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"sitepulse/internal/model"
	"sitepulse/internal/reviews"
)

// Element is the rendered state of one widget.
type Element struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Class     string       `json:"class,omitempty"`
	Source    model.Source `json:"source,omitempty"`
	Value     any          `json:"value,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
	Loading   bool         `json:"loading"`
}

// Board stores elements by id. Publishing to an id that was never
// registered does nothing.
type Board struct {
	mu       sync.RWMutex
	elements map[string]Element
	plain    map[string]bool
	now      func() time.Time
}

func NewBoard() *Board {
	return &Board{
		elements: make(map[string]Element),
		plain:    make(map[string]bool),
		now:      time.Now,
	}
}

// Register adds an element in the loading state. Plain counters render
// without thousands separators.
func (b *Board) Register(id string, plain bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[id]; ok {
		return
	}
	b.elements[id] = Element{ID: id, Text: "…", Loading: true}
	b.plain[id] = plain
}

func (b *Board) Publish(ctx context.Context, id string, r model.MetricResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[id]; !ok {
		return nil
	}
	el := render(id, r, b.plain[id], b.now())
	b.elements[id] = el
	return nil
}

func (b *Board) Get(id string) (Element, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	el, ok := b.elements[id]
	return el, ok
}

// Snapshot returns every element ordered by id.
func (b *Board) Snapshot() []Element {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Element, 0, len(b.elements))
	for _, el := range b.elements {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func render(id string, r model.MetricResult, plain bool, now time.Time) Element {
	el := Element{ID: id, Source: r.Source, Value: r.Value, UpdatedAt: r.ResolvedAt}
	if el.UpdatedAt.IsZero() {
		el.UpdatedAt = now.UTC()
	}
	switch v := r.Value.(type) {
	case int64:
		if plain {
			el.Text = fmt.Sprintf("%d", v)
		} else {
			el.Text = humanize.Comma(v)
		}
		el.Class = "counter-updated"
	case model.LiveStatus:
		el.Text = v.Emoji + " " + v.Text
		el.Class = v.Color
	case model.ReviewPage:
		cards := reviews.Cards(v.Reviews, now)
		if len(cards) == 0 {
			el.Text = "No reviews available yet."
		} else {
			el.Text = english.Plural(len(cards), "review", "reviews")
		}
		el.Value = cards
	default:
		el.Text = fmt.Sprint(v)
	}
	return el
}
