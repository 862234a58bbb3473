package domain

import (
	"strconv"
	"strings"
	"time"
)

// Subscriber is one chat registered for alert broadcasts.
// Params: chat id, display metadata, subscription time, and approval flag.
// Returns: registry entry persisted to configuration.
type Subscriber struct {
	ChatID       int64     `json:"chat_id" toml:"chat_id"`
	Username     string    `json:"username" toml:"username"`
	FirstName    string    `json:"first_name" toml:"first_name"`
	SubscribedAt time.Time `json:"subscribed_at" toml:"subscribed_at"`
	Approved     bool      `json:"approved" toml:"approved"`
}

// DisplayName returns the best available human label.
// Params: none.
// Returns: @username, first name, or the numeric chat id.
func (s Subscriber) DisplayName() string {
	if name := strings.TrimSpace(s.Username); name != "" {
		return "@" + strings.TrimPrefix(name, "@")
	}
	if name := strings.TrimSpace(s.FirstName); name != "" {
		return name
	}
	return strconv.FormatInt(s.ChatID, 10)
}

// StatusLabel renders the approval state.
func (s Subscriber) StatusLabel() string {
	if s.Approved {
		return "approved"
	}
	return "pending approval"
}
