package models

import "time"

// Message is a broadcast from a teacher to the teams mentored by that
// teacher at send time. The team list is a snapshot, not a live query.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	SenderEmail string    `db:"sender_email" json:"sender_email"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`

	TeamIDs []string `db:"-" json:"team_ids,omitempty"`
}

// MessageSummary is the admin/student projection of a message.
type MessageSummary struct {
	ID          string    `json:"id"`
	SenderEmail string    `json:"sender_email"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	TeamsCount  int       `json:"teams_count"`
	CreatedAt   time.Time `json:"created_at"`
}
