package model

type LiveStatus struct {
	Emoji string `json:"emoji"`
	Color string `json:"color"`
	Text  string `json:"text"`
}

func DefaultLiveStatus() LiveStatus {
	return LiveStatus{Emoji: "🟢", Color: "green", Text: "Online"}
}
