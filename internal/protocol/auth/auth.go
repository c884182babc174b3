// Package auth implements the challenge/response login of the mailbox
// protocol: auth hands out a token, auth_signed checks the client's signature
// over it and grants roles, logout forgets everything.
//
// Three login branches exist. The account owner signs with the main key of
// the account profile, a known contact signs with the key registered for it,
// and an account without a profile is claimed with a key provisioned out of
// band.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"mailbox_server/internal/model"
)

const (
	AuthStanza       = "auth"
	AuthSignedStanza = "auth_signed"
	LogoutStanza     = "logout"
	RoleStanza       = "role"

	TypeSignature = "signature"

	StatusSignThisToken = "sign_this_token"
	StatusUnknownUser   = "i_dont_know_you"
	StatusOK            = "ok"
	StatusDenied        = "denied"

	tokenSize = 32
)

type (
	// IdentityStore resolves the profile of a server account. It returns
	// (nil, nil) when the account has no profile yet.
	IdentityStore interface {
		ResolveAccount(ctx context.Context, account string) (*model.Identity, error)
	}

	// SetupKeys returns the key provisioned for claiming an account that has
	// no profile, or (nil, nil) if none was provisioned.
	SetupKeys interface {
		SetupKey(ctx context.Context, account string) ([]byte, error)
	}

	Verifier interface {
		Verify(publicKey, message, signature []byte) bool
	}

	Authenticator struct {
		identities IdentityStore
		setupKeys  SetupKeys
		verifier   Verifier
		tokenTTL   time.Duration
		now        func() time.Time
		rand       io.Reader
	}

	Option func(*Authenticator)
)

// WithTokenTTL bounds how long an issued challenge can be answered. Zero
// disables the bound.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.tokenTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

func WithRand(r io.Reader) Option {
	return func(a *Authenticator) {
		a.rand = r
	}
}

func NewAuthenticator(identities IdentityStore, setupKeys SetupKeys, verifier Verifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		identities: identities,
		setupKeys:  setupKeys,
		verifier:   verifier,
		tokenTTL:   5 * time.Minute,
		now:        time.Now,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) newToken() (string, error) {
	buf := make([]byte, tokenSize)
	if _, err := io.ReadFull(a.rand, buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// knows reports whether user may log in to the account of identity.
func knows(identity *model.Identity, user string) bool {
	return identity.Owner.UID == user || identity.FindContact(user) != nil
}
