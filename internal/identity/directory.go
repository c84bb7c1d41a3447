package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/chirpfeed/chirpfeed/pkg/logger"
	"github.com/chirpfeed/chirpfeed/pkg/metrics"
)

// MinPasswordLength is enforced at sign-up, mirroring the sign-in gate.
const MinPasswordLength = 6

// Mailer delivers password-reset tokens. Production deployments plug in a
// real transport; LogMailer is the default.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the application log instead of sending
// mail. Suitable for dev and integration environments only.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	logger.Infof("password reset requested for %s (token %s)", email, token)
	return nil
}

type authSub struct {
	mu       sync.Mutex
	released bool
	cb       AuthChangeFunc
}

func (s *authSub) deliver(acct *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.cb(acct)
}

// Directory is the email+password identity provider backed by an account
// repository. It keeps a process-wide current account, the analogue of a
// client SDK's ambient auth state, and fans auth changes out to subscribers.
// An optional Federated verifier serves SignInFederated.
type Directory struct {
	mu        sync.Mutex
	accounts  AccountRepository
	federated *Federated
	mailer    Mailer
	current   *Account
	subs      map[int]*authSub
	nextSub   int
}

func NewDirectory(accounts AccountRepository, federated *Federated, mailer Mailer) *Directory {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Directory{
		accounts:  accounts,
		federated: federated,
		mailer:    mailer,
		subs:      make(map[int]*authSub),
	}
}

// SubscribeAuthChanges registers a listener and fires it immediately with the
// current auth state, so a fresh subscriber hydrates without waiting for the
// next sign-in or sign-out.
func (d *Directory) SubscribeAuthChanges(cb AuthChangeFunc) Unsubscribe {
	s := &authSub{cb: cb}

	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = s
	current := cloneAccount(d.current)
	d.mu.Unlock()

	s.deliver(current)

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
	}
}

// publish records the new current account and notifies subscribers. Delivery
// happens outside the directory lock so a callback may call back in.
func (d *Directory) publish(acct *Account) {
	d.mu.Lock()
	d.current = cloneAccount(acct)
	subs := make([]*authSub, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.Unlock()

	for _, s := range subs {
		s.deliver(cloneAccount(acct))
	}
}

func (d *Directory) SignIn(ctx context.Context, email, password string) (*Account, error) {
	stored, err := d.accounts.GetByEmail(ctx, email)
	if err != nil {
		metrics.AuthOps.WithLabelValues("signin", "error").Inc()
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if stored == nil {
		metrics.AuthOps.WithLabelValues("signin", "rejected").Inc()
		return nil, ErrUnknownAccount
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(password)) != nil {
		metrics.AuthOps.WithLabelValues("signin", "rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	acct := accountOf(stored)
	d.publish(acct)
	metrics.AuthOps.WithLabelValues("signin", "ok").Inc()
	return acct, nil
}

func (d *Directory) SignUp(ctx context.Context, email, password string) (*Account, error) {
	if len(password) < MinPasswordLength {
		metrics.AuthOps.WithLabelValues("signup", "rejected").Inc()
		return nil, ErrWeakPassword
	}
	existing, err := d.accounts.GetByEmail(ctx, email)
	if err != nil {
		metrics.AuthOps.WithLabelValues("signup", "error").Inc()
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if existing != nil {
		metrics.AuthOps.WithLabelValues("signup", "rejected").Inc()
		return nil, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		metrics.AuthOps.WithLabelValues("signup", "error").Inc()
		return nil, fmt.Errorf("hash password: %w", err)
	}
	stored := &StoredAccount{Email: email, PasswordHash: string(hash)}
	if err := d.accounts.Create(ctx, stored); err != nil {
		metrics.AuthOps.WithLabelValues("signup", "error").Inc()
		return nil, fmt.Errorf("create account: %w", err)
	}

	acct := accountOf(stored)
	d.publish(acct)
	metrics.AuthOps.WithLabelValues("signup", "ok").Inc()
	return acct, nil
}

func (d *Directory) SignInFederated(ctx context.Context, rawIDToken string) (*Account, error) {
	if d.federated == nil {
		return nil, ErrNotConfigured
	}
	claims, err := d.federated.Verify(ctx, rawIDToken)
	if err != nil {
		metrics.AuthOps.WithLabelValues("federated", "rejected").Inc()
		return nil, fmt.Errorf("identity token rejected: %w", err)
	}
	stored, err := d.accounts.UpsertBySubject(ctx, &StoredAccount{
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	})
	if err != nil {
		metrics.AuthOps.WithLabelValues("federated", "error").Inc()
		return nil, fmt.Errorf("account upsert: %w", err)
	}
	acct := accountOf(stored)
	d.publish(acct)
	metrics.AuthOps.WithLabelValues("federated", "ok").Inc()
	return acct, nil
}

func (d *Directory) SignOut(ctx context.Context) error {
	d.publish(nil)
	metrics.AuthOps.WithLabelValues("signout", "ok").Inc()
	return nil
}

func (d *Directory) SendPasswordReset(ctx context.Context, email string) error {
	stored, err := d.accounts.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	if stored == nil {
		return ErrUnknownAccount
	}
	tok := make([]byte, 16)
	if _, err := rand.Read(tok); err != nil {
		return fmt.Errorf("mint reset token: %w", err)
	}
	return d.mailer.SendPasswordReset(ctx, email, hex.EncodeToString(tok))
}

// UpdateProfile writes the profile to the account record. The current
// account is updated in place without a notification: the session layer
// mirrors the change through its own profile-update operation instead of a
// re-subscription round trip.
func (d *Directory) UpdateProfile(ctx context.Context, uid string, p Profile) error {
	if err := d.accounts.UpdateProfile(ctx, uid, p.DisplayName, p.PhotoURL); err != nil {
		return fmt.Errorf("profile update: %w", err)
	}
	d.mu.Lock()
	if d.current != nil && d.current.UID == uid {
		d.current.DisplayName = p.DisplayName
		d.current.PhotoURL = p.PhotoURL
	}
	d.mu.Unlock()
	return nil
}

func accountOf(s *StoredAccount) *Account {
	return &Account{UID: s.UID, Email: s.Email, DisplayName: s.DisplayName, PhotoURL: s.PhotoURL}
}

func cloneAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
