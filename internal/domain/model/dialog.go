package model

import "time"

type Chat struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	UnreadCount int       `json:"unread_count"`
	LastMessage string    `json:"last_message,omitempty"`
	LastDate    time.Time `json:"last_date"`
}

type Message struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	Outgoing bool      `json:"outgoing"`
}
