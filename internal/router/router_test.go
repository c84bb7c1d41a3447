package router

import (
	"testing"

	"github.com/chirpfeed/chirpfeed/internal/models"
)

func TestRoute(t *testing.T) {
	if got := Route(models.User{}); got != ExperienceAuth {
		t.Fatalf("zero user should route to auth, got %v", got)
	}
	if got := Route(models.User{UID: "u1"}); got != ExperienceFeed {
		t.Fatalf("signed-in user should route to feed, got %v", got)
	}
	// profile fields alone do not constitute a session
	if got := Route(models.User{DisplayName: "bob", PhotoURL: "http://x/y.png"}); got != ExperienceAuth {
		t.Fatalf("user without UID should route to auth, got %v", got)
	}
}

func TestExperienceString(t *testing.T) {
	if ExperienceAuth.String() != "auth" {
		t.Fatalf("ExperienceAuth.String() = %q", ExperienceAuth.String())
	}
	if ExperienceFeed.String() != "feed" {
		t.Fatalf("ExperienceFeed.String() = %q", ExperienceFeed.String())
	}
}
