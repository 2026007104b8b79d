package model

import "time"

type ReviewAuthor struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type Review struct {
	ID        string        `json:"id,omitempty"`
	Author    *ReviewAuthor `json:"author"`
	Content   string        `json:"content"`
	Rating    int           `json:"rating"`
	Timestamp time.Time     `json:"timestamp"`
}

type ReviewPage struct {
	Reviews    []Review  `json:"reviews"`
	HasMore    bool      `json:"hasMore"`
	LastUpdate time.Time `json:"lastUpdate,omitempty"`
}
