// Package router decides which experience a session sees.
package router

import "github.com/chirpfeed/chirpfeed/internal/models"

// Experience is the top-level view a user is routed to.
type Experience int

const (
	// ExperienceAuth is the authentication/registration experience.
	ExperienceAuth Experience = iota
	// ExperienceFeed is the authenticated feed experience.
	ExperienceFeed
)

func (e Experience) String() string {
	if e == ExperienceFeed {
		return "feed"
	}
	return "auth"
}

// Route is a pure function of the current user: a non-empty UID routes to
// the feed, anything else to authentication. Re-evaluated on every session
// change; no state of its own.
func Route(u models.User) Experience {
	if u.SignedIn() {
		return ExperienceFeed
	}
	return ExperienceAuth
}
