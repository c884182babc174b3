package auth_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"mailbox_server/internal/cryptographic/signature"
	"mailbox_server/internal/model"
	"mailbox_server/internal/protocol/auth"
	"mailbox_server/internal/protocol/stanza"
	"mailbox_server/internal/session"
)

type keypair struct {
	pub  []byte
	priv []byte
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return keypair{pub: pub, priv: priv}
}

func (k keypair) sign(token string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(ed25519.PrivateKey(k.priv), []byte(token)))
}

type identities struct {
	byAccount map[string]*model.Identity
	calls     int
	err       error
}

func (s *identities) ResolveAccount(ctx context.Context, account string) (*model.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byAccount[account], nil
}

type setupKeys map[string][]byte

func (s setupKeys) SetupKey(ctx context.Context, account string) ([]byte, error) {
	return s[account], nil
}

type fixture struct {
	owner, contact, setup, stranger keypair
	ids                             *identities
	now                             time.Time
	a                               *auth.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		owner:    newKeypair(t),
		contact:  newKeypair(t),
		setup:    newKeypair(t),
		stranger: newKeypair(t),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ids = &identities{byAccount: map[string]*model.Identity{
		"bob": {
			Account: "bob",
			Owner: model.Contact{
				UID:       "bob-uid",
				MainKeyID: "k1",
				Keys:      []model.KeySet{{ID: "k1", PublicKey: f.owner.pub}},
			},
			Contacts: []model.Contact{{
				UID:       "alice-uid",
				MainKeyID: "a1",
				Keys:      []model.KeySet{{ID: "a1", PublicKey: f.contact.pub}},
			}},
		},
	}}
	f.a = auth.NewAuthenticator(f.ids, setupKeys{"carol": f.setup.pub}, signature.Verifier{},
		auth.WithClock(func() time.Time { return f.now }),
		auth.WithTokenTTL(time.Minute))
	return f
}

// run sends doc through the auth handlers and returns the response envelopes.
func (f *fixture) run(t *testing.T, sess *session.Context, doc string) []*stanza.Stanza {
	t.Helper()
	in, err := stanza.ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}

	var resp stanza.Response
	if err := stanza.NewRouter(f.a.Handlers(sess, &resp)...).Process(context.Background(), in, &resp); err != nil {
		t.Fatalf("process: %v", err)
	}
	out, err := stanza.ParseBytes(resp.Bytes())
	if err != nil {
		t.Fatalf("parse response %s: %v", resp.Bytes(), err)
	}
	return out
}

func result(t *testing.T, envelopes []*stanza.Stanza, name string) *stanza.Stanza {
	t.Helper()
	for _, iq := range envelopes {
		if iq.Attr("type") == stanza.IqResult {
			if s := iq.Child(name); s != nil {
				return s
			}
		}
	}
	t.Fatalf("no %s result in response", name)
	return nil
}

func errorMessages(envelopes []*stanza.Stanza) []string {
	var res []string
	for _, iq := range envelopes {
		if iq.Attr("type") == stanza.IqError {
			res = append(res, iq.Child("error").Attr("message"))
		}
	}
	return res
}

func authDoc(typ, user, serverUser string) string {
	return `<iq type="get"><auth type="` + typ + `" user="` + user + `" server_user="` + serverUser + `"/></iq>`
}

func signedDoc(sig string) string {
	return `<iq type="set"><auth_signed signature="` + sig + `"/></iq>`
}

// challenge runs the auth step and returns the issued token.
func (f *fixture) challenge(t *testing.T, sess *session.Context, user, serverUser string) string {
	t.Helper()
	res := result(t, f.run(t, sess, authDoc("signature", user, serverUser)), auth.AuthStanza)
	if res.Attr("status") != auth.StatusSignThisToken {
		t.Fatalf("auth status = %q", res.Attr("status"))
	}
	return res.Attr("sign_token")
}

func TestAuth_MissingAttributesRejectedBeforeLookup(t *testing.T) {
	tests := []struct {
		name, typ, user, serverUser string
	}{
		{"no type", "", "alice-uid", "bob"},
		{"no user", "signature", "", "bob"},
		{"no server user", "signature", "alice-uid", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sess := session.New()

			out := f.run(t, sess, authDoc(tt.typ, tt.user, tt.serverUser))
			if msgs := errorMessages(out); len(msgs) != 1 || msgs[0] != "invalid auth stanza" {
				t.Fatalf("errors = %v", msgs)
			}
			if f.ids.calls != 0 {
				t.Fatalf("identity store called %d times", f.ids.calls)
			}
			if sess.SignatureToken != "" {
				t.Fatal("token issued for invalid request")
			}
		})
	}
}

func TestAuth_UnsupportedTypeStillIssuesChallenge(t *testing.T) {
	f := newFixture(t)
	sess := session.New()

	out := f.run(t, sess, authDoc("password", "alice-uid", "bob"))
	msgs := errorMessages(out)
	if len(msgs) != 1 || msgs[0] != "Unsupported authentication type." {
		t.Fatalf("errors = %v", msgs)
	}
	res := result(t, out, auth.AuthStanza)
	if res.Attr("status") != auth.StatusSignThisToken || res.Attr("sign_token") == "" {
		t.Fatalf("auth result = %+v", res.Attrs)
	}

	out = f.run(t, session.New(), authDoc("password", "stranger", "bob"))
	if msgs := errorMessages(out); len(msgs) != 1 {
		t.Fatalf("unknown user: errors = %v", msgs)
	}
	if res := result(t, out, auth.AuthStanza); res.Attr("status") != auth.StatusUnknownUser {
		t.Fatalf("unknown user: status = %q", res.Attr("status"))
	}
}

func TestAuth_UnknownUserGetsNoToken(t *testing.T) {
	f := newFixture(t)

	res := result(t, f.run(t, session.New(), authDoc("signature", "mallory", "bob")), auth.AuthStanza)
	if res.Attr("status") != auth.StatusUnknownUser {
		t.Fatalf("status = %q", res.Attr("status"))
	}
	if _, ok := res.LookupAttr("sign_token"); ok {
		t.Fatal("token revealed to unknown user")
	}
}

func TestAuth_IssuesUnpredictableTokens(t *testing.T) {
	f := newFixture(t)

	s1, s2 := session.New(), session.New()
	t1 := f.challenge(t, s1, "alice-uid", "bob")
	t2 := f.challenge(t, s2, "alice-uid", "bob")

	if t1 == t2 {
		t.Fatal("two sessions got the same token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(t1)
	if err != nil || len(raw) != 32 {
		t.Fatalf("token %q: %d bytes, %v", t1, len(raw), err)
	}
	if s1.SignatureToken != t1 || s1.LoginUser != "alice-uid" || s1.LoginServerUser != "bob" {
		t.Fatalf("session = %+v", s1)
	}
	if !s1.TokenIssuedAt.Equal(f.now) {
		t.Fatalf("issued at %v", s1.TokenIssuedAt)
	}
}

func TestAuth_RandomFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	a := auth.NewAuthenticator(f.ids, setupKeys{}, signature.Verifier{}, auth.WithRand(strings.NewReader("short")))

	in, _ := stanza.ParseBytes([]byte(authDoc("signature", "alice-uid", "bob")))
	var resp stanza.Response
	if err := stanza.NewRouter(a.Handlers(session.New(), &resp)...).Process(context.Background(), in, &resp); err == nil {
		t.Fatal("expected error when the random source fails")
	}
}

func TestAuthSigned_Branches(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		serverUser string
		key        func(f *fixture) keypair
		role       string
		account    string
	}{
		{"self login", "bob-uid", "bob", func(f *fixture) keypair { return f.owner }, session.RoleAccount, "bob"},
		{"contact login", "alice-uid", "bob", func(f *fixture) keypair { return f.contact }, "bob:contact_user", ""},
		{"bootstrap login", "carol-uid", "carol", func(f *fixture) keypair { return f.setup }, session.RoleAccount, "carol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sess := session.New()
			token := f.challenge(t, sess, tt.user, tt.serverUser)

			res := result(t, f.run(t, sess, signedDoc(tt.key(f).sign(token))), auth.AuthSignedStanza)
			if res.Attr("status") != auth.StatusOK {
				t.Fatalf("status = %q, message = %q", res.Attr("status"), res.Attr("message"))
			}
			if _, ok := res.LookupAttr("message"); ok {
				t.Fatalf("unexpected message %q", res.Attr("message"))
			}
			roles := res.ChildrenNamed(auth.RoleStanza)
			if len(roles) != 1 || string(roles[0].Text) != tt.role {
				t.Fatalf("roles in response = %+v", roles)
			}
			if len(sess.Roles) != 1 || sess.Roles[0] != tt.role {
				t.Fatalf("session roles = %v", sess.Roles)
			}
			if sess.AccountUser != tt.account {
				t.Fatalf("account user = %q, want %q", sess.AccountUser, tt.account)
			}
		})
	}
}

func TestAuthSigned_BadSignatureClearsRoles(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		serverUser string
		message    string
	}{
		{"self login", "bob-uid", "bob", "can't verify account login"},
		{"contact login", "alice-uid", "bob", "can't verify user login"},
		{"bootstrap login", "carol-uid", "carol", "can't verify setup login"},
		{"bootstrap without setup key", "dave-uid", "dave", "can't verify setup login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sess := session.New()
			sess.SetRoles([]string{session.RoleAccount, "x:contact_user"})
			sess.AccountUser = "bob"

			token := f.challenge(t, sess, tt.user, tt.serverUser)
			res := result(t, f.run(t, sess, signedDoc(f.stranger.sign(token))), auth.AuthSignedStanza)

			if res.Attr("status") != auth.StatusDenied || res.Attr("message") != tt.message {
				t.Fatalf("status = %q, message = %q", res.Attr("status"), res.Attr("message"))
			}
			if len(res.ChildrenNamed(auth.RoleStanza)) != 0 {
				t.Fatal("roles echoed on failure")
			}
			if sess.Authenticated() || sess.AccountUser != "" {
				t.Fatalf("prior roles kept: %v %q", sess.Roles, sess.AccountUser)
			}
		})
	}
}

func TestAuthSigned_UnknownUser(t *testing.T) {
	f := newFixture(t)
	sess := session.New()

	res := result(t, f.run(t, sess, authDoc("signature", "mallory", "bob")), auth.AuthStanza)
	if res.Attr("status") != auth.StatusUnknownUser {
		t.Fatalf("status = %q", res.Attr("status"))
	}

	res = result(t, f.run(t, sess, signedDoc(f.stranger.sign(sess.SignatureToken))), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied || res.Attr("message") != "can't find user: mallory" {
		t.Fatalf("status = %q, message = %q", res.Attr("status"), res.Attr("message"))
	}
}

func TestAuthSigned_TokenIsSingleUse(t *testing.T) {
	f := newFixture(t)
	sess := session.New()
	token := f.challenge(t, sess, "bob-uid", "bob")
	sig := f.owner.sign(token)

	if res := result(t, f.run(t, sess, signedDoc(sig)), auth.AuthSignedStanza); res.Attr("status") != auth.StatusOK {
		t.Fatalf("first attempt: %q", res.Attr("message"))
	}

	res := result(t, f.run(t, sess, signedDoc(sig)), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied || res.Attr("message") != "no pending challenge" {
		t.Fatalf("replay: status = %q, message = %q", res.Attr("status"), res.Attr("message"))
	}
	if sess.Authenticated() {
		t.Fatal("replay kept roles")
	}
}

func TestAuthSigned_FailedAttemptBurnsToken(t *testing.T) {
	f := newFixture(t)
	sess := session.New()
	token := f.challenge(t, sess, "bob-uid", "bob")

	f.run(t, sess, signedDoc(f.stranger.sign(token)))
	res := result(t, f.run(t, sess, signedDoc(f.owner.sign(token))), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied {
		t.Fatal("token usable after a failed attempt")
	}
}

func TestAuthSigned_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	sess := session.New()
	token := f.challenge(t, sess, "bob-uid", "bob")

	f.now = f.now.Add(2 * time.Minute)
	res := result(t, f.run(t, sess, signedDoc(f.owner.sign(token))), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied || res.Attr("message") != "no pending challenge" {
		t.Fatalf("status = %q, message = %q", res.Attr("status"), res.Attr("message"))
	}
}

func TestAuthSigned_InvalidSignatureAttribute(t *testing.T) {
	for _, sig := range []string{"", "%%%not-base64"} {
		f := newFixture(t)
		sess := session.New()
		f.challenge(t, sess, "bob-uid", "bob")
		calls := f.ids.calls

		out := f.run(t, sess, signedDoc(sig))
		if msgs := errorMessages(out); len(msgs) != 1 || msgs[0] != "invalid auth_signed stanza" {
			t.Fatalf("signature %q: errors = %v", sig, msgs)
		}
		if f.ids.calls != calls {
			t.Fatalf("signature %q: identity store consulted", sig)
		}
		if sess.SignatureToken == "" {
			t.Fatalf("signature %q: token consumed by an invalid request", sig)
		}
	}
}

func TestAuthSigned_StoreFailureDenies(t *testing.T) {
	f := newFixture(t)
	sess := session.New()
	token := f.challenge(t, sess, "bob-uid", "bob")

	f.ids.err = errors.New("mongo down")
	res := result(t, f.run(t, sess, signedDoc(f.owner.sign(token))), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied {
		t.Fatalf("status = %q", res.Attr("status"))
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newFixture(t)
	sess := session.New()
	token := f.challenge(t, sess, "bob-uid", "bob")
	sig := f.owner.sign(token)
	f.challenge(t, sess, "bob-uid", "bob")
	sess.SetRoles([]string{session.RoleAccount})

	res := result(t, f.run(t, sess, `<iq type="set"><logout/></iq>`), auth.LogoutStanza)
	if res.Attr("status") != auth.StatusOK {
		t.Fatalf("status = %q", res.Attr("status"))
	}
	if sess.SignatureToken != "" || sess.LoginUser != "" || sess.LoginServerUser != "" ||
		sess.AccountUser != "" || sess.Authenticated() || !sess.TokenIssuedAt.IsZero() {
		t.Fatalf("session not cleared: %+v", sess)
	}

	res = result(t, f.run(t, sess, signedDoc(sig)), auth.AuthSignedStanza)
	if res.Attr("status") != auth.StatusDenied || res.Attr("message") != "no pending challenge" {
		t.Fatalf("after logout: status = %q, message = %q", res.Attr("status"), res.Attr("message"))
	}
}
