package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

func TestSignUpAndSignIn(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	ctx := context.Background()

	acct, err := d.SignUp(ctx, "bob@example.com", "abcdef")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if acct.UID == "" || acct.Email != "bob@example.com" {
		t.Fatalf("unexpected account: %+v", acct)
	}

	again, err := d.SignIn(ctx, "bob@example.com", "abcdef")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if again.UID != acct.UID {
		t.Fatalf("SignIn returned a different account: %q vs %q", again.UID, acct.UID)
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	if _, err := d.SignUp(context.Background(), "bob@example.com", "abcde"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("error = %v, want ErrWeakPassword", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	ctx := context.Background()
	if _, err := d.SignUp(ctx, "bob@example.com", "abcdef"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := d.SignUp(ctx, "bob@example.com", "ghijkl"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("error = %v, want ErrEmailInUse", err)
	}
}

func TestSignInFailures(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	ctx := context.Background()
	if _, err := d.SignUp(ctx, "bob@example.com", "abcdef"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if _, err := d.SignIn(ctx, "nobody@example.com", "abcdef"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("unknown email error = %v, want ErrUnknownAccount", err)
	}
	if _, err := d.SignIn(ctx, "bob@example.com", "wrongpw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthChangeNotifications(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	ctx := context.Background()

	var fired []*Account
	cancel := d.SubscribeAuthChanges(func(acct *Account) { fired = append(fired, acct) })

	// the listener hydrates immediately with the current (signed-out) state
	if len(fired) != 1 || fired[0] != nil {
		t.Fatalf("expected one immediate nil notification, got %v", fired)
	}

	acct, err := d.SignUp(ctx, "bob@example.com", "abcdef")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if len(fired) != 2 || fired[1] == nil || fired[1].UID != acct.UID {
		t.Fatalf("expected a sign-up notification, got %v", fired)
	}

	if err := d.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if len(fired) != 3 || fired[2] != nil {
		t.Fatalf("expected a nil sign-out notification, got %v", fired)
	}

	cancel()
	if _, err := d.SignIn(ctx, "bob@example.com", "abcdef"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if len(fired) != 3 {
		t.Fatalf("listener fired after Unsubscribe returned")
	}
}

func TestUpdateProfileDoesNotNotify(t *testing.T) {
	repo := NewMemoryAccountRepository()
	d := NewDirectory(repo, nil, nil)
	ctx := context.Background()

	acct, err := d.SignUp(ctx, "bob@example.com", "abcdef")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	fired := 0
	cancel := d.SubscribeAuthChanges(func(*Account) { fired++ })
	defer cancel()
	hydration := fired

	if err := d.UpdateProfile(ctx, acct.UID, Profile{DisplayName: "bob", PhotoURL: "http://x/me.png"}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if fired != hydration {
		t.Fatalf("profile updates must not fan out auth notifications")
	}

	stored, err := repo.GetByUID(ctx, acct.UID)
	if err != nil || stored == nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if stored.DisplayName != "bob" || stored.PhotoURL != "http://x/me.png" {
		t.Fatalf("profile not persisted: %+v", stored)
	}

	// the directory's current account reflects the update for late subscribers
	var late *Account
	cancel2 := d.SubscribeAuthChanges(func(a *Account) { late = a })
	defer cancel2()
	if late == nil || late.DisplayName != "bob" {
		t.Fatalf("late subscriber did not observe the updated profile: %+v", late)
	}
}

func TestSendPasswordReset(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	ctx := context.Background()
	if err := d.SendPasswordReset(ctx, "nobody@example.com"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("error = %v, want ErrUnknownAccount", err)
	}
	if _, err := d.SignUp(ctx, "bob@example.com", "abcdef"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := d.SendPasswordReset(ctx, "bob@example.com"); err != nil {
		t.Fatalf("SendPasswordReset failed: %v", err)
	}
}

func unsignedToken(t *testing.T, payload string) string {
	t.Helper()
	return "hdr." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestSignInFederated(t *testing.T) {
	repo := NewMemoryAccountRepository()
	d := NewDirectory(repo, NewInsecureFederated(), nil)
	ctx := context.Background()

	tok := unsignedToken(t, `{"sub":"ext-1","email":"fed@example.com","name":"Fed","picture":"http://p/f.png"}`)
	acct, err := d.SignInFederated(ctx, tok)
	if err != nil {
		t.Fatalf("SignInFederated failed: %v", err)
	}
	if acct.Email != "fed@example.com" || acct.DisplayName != "Fed" || acct.PhotoURL != "http://p/f.png" {
		t.Fatalf("claims not projected: %+v", acct)
	}

	// same subject maps to the same local account
	again, err := d.SignInFederated(ctx, tok)
	if err != nil {
		t.Fatalf("repeat SignInFederated failed: %v", err)
	}
	if again.UID != acct.UID {
		t.Fatalf("subject mapped to a new account: %q vs %q", again.UID, acct.UID)
	}

	if _, err := d.SignInFederated(ctx, unsignedToken(t, `{"email":"no-sub@example.com"}`)); err == nil {
		t.Fatalf("token without subject must be rejected")
	}
}

func TestSignInFederatedNotConfigured(t *testing.T) {
	d := NewDirectory(NewMemoryAccountRepository(), nil, nil)
	if _, err := d.SignInFederated(context.Background(), "whatever"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}
