package models

import "time"

// Post is a single feed entry. The ID is assigned by the document store,
// never by the client. Timestamp stays nil until the store resolves its
// server-assigned write time, so a fresh post may sort unpredictably against
// concurrent writes for a short window.
type Post struct {
	ID        string     `json:"id"`
	Avatar    string     `json:"avatar"`
	Image     string     `json:"image"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp"`
	Username  string     `json:"username"`
}

// Comment lives in a post's child collection. Same server-timestamp caveat
// as Post.
type Comment struct {
	ID        string     `json:"id"`
	Avatar    string     `json:"avatar"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp"`
	Username  string     `json:"username"`
}
