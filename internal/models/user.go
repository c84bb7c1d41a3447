package models

// User is the application's view of the authenticated session.
// An empty UID means "no authenticated session".
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// SignedIn reports whether the user represents an authenticated session.
func (u User) SignedIn() bool { return u.UID != "" }
