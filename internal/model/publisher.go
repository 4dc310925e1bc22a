package model

import (
	"encoding/base64"
	"time"
)

// Publisher is a partner whose feed is imported.
type Publisher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FeedURL      string    `json:"feed_url"`
	FeedUsername string    `json:"feed_username,omitempty"`
	FeedPassword string    `json:"-"`
	DefaultLogo  string    `json:"default_logo,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedHeaders returns the request headers needed to fetch the publisher feed.
func (p Publisher) FeedHeaders() map[string]string {
	if p.FeedUsername == "" && p.FeedPassword == "" {
		return nil
	}
	creds := base64.StdEncoding.EncodeToString([]byte(p.FeedUsername + ":" + p.FeedPassword))
	return map[string]string{"Authorization": "Basic " + creds}
}
