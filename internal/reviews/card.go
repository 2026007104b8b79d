package reviews

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"

	"sitepulse/internal/model"
)

const (
	maxRating      = 5
	defaultAuthor  = "Anonymous"
	defaultContent = "No review message."
)

// Card is a review prepared for display.
type Card struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Initials string `json:"initials"`
	Avatar   string `json:"avatar,omitempty"`
	Content  string `json:"content"`
	Rating   int    `json:"rating"`
	Stars    string `json:"stars"`
	Date     string `json:"date"`
}

// NewCard renders r. Reviews without an author are not displayable.
func NewCard(r model.Review, now time.Time) (Card, bool) {
	if r.Author == nil {
		return Card{}, false
	}
	username := strings.TrimSpace(r.Author.Username)
	if username == "" {
		username = defaultAuthor
	}
	content := strings.TrimSpace(r.Content)
	if content == "" {
		content = defaultContent
	}
	rating := min(max(r.Rating, 0), maxRating)
	return Card{
		ID:       r.ID,
		Username: username,
		Initials: initials(username),
		Avatar:   r.Author.Avatar,
		Content:  content,
		Rating:   rating,
		Stars:    strings.Repeat("★", rating) + strings.Repeat("☆", maxRating-rating),
		Date:     FormatRelative(now, r.Timestamp),
	}, true
}

// Cards renders every displayable review in order.
func Cards(rs []model.Review, now time.Time) []Card {
	out := make([]Card, 0, len(rs))
	for _, r := range rs {
		if c, ok := NewCard(r, now); ok {
			out = append(out, c)
		}
	}
	return out
}

// FormatRelative renders ts relative to now the way the reviews feed shows it.
func FormatRelative(now, ts time.Time) string {
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	days := int(diff / (24 * time.Hour))
	switch {
	case days == 0:
		hours := int(diff / time.Hour)
		if hours > 0 {
			return english.Plural(hours, "hour", "hours") + " ago"
		}
		minutes := int(diff / time.Minute)
		if minutes == 0 {
			return "Just now"
		}
		return english.Plural(minutes, "minute", "minutes") + " ago"
	case days < 7:
		return english.Plural(days, "day", "days") + " ago"
	default:
		return ts.Format("Jan 2, 2006")
	}
}

func initials(username string) string {
	r := []rune(username)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}
