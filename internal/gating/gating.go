// Package gating holds the submission-enablement rules checked before any
// form input reaches the sequencer.
package gating

// MinPasswordLength matches the identity provider's password policy.
const MinPasswordLength = 6

// CanSignIn requires a non-empty email and a password of minimum length.
func CanSignIn(email, password string) bool {
	return email != "" && len(password) >= MinPasswordLength
}

// CanRegister additionally requires a username and a selected avatar file.
func CanRegister(username, email, password string, hasAvatar bool) bool {
	return username != "" && email != "" && len(password) >= MinPasswordLength && hasAvatar
}

// CanSubmitPost requires non-empty text regardless of image state: image-only
// posts are disallowed.
func CanSubmitPost(text string) bool {
	return text != ""
}

// CanSubmitComment requires non-empty text.
func CanSubmitComment(text string) bool {
	return text != ""
}
