package auth

import (
	"context"
	"encoding/base64"
	"fmt"

	"mailbox_server/internal/metrics"
	"mailbox_server/internal/model"
	"mailbox_server/internal/protocol/stanza"
	"mailbox_server/internal/session"
	"mailbox_server/internal/utils/log"

	"go.uber.org/zap"
)

type (
	// AuthHandler issues a login challenge.
	AuthHandler struct {
		stanza.Base
		a    *Authenticator
		sess *session.Context
		resp *stanza.Response

		authType   string
		user       string
		serverUser string
	}

	// AuthSignedHandler verifies the signed challenge and grants roles.
	AuthSignedHandler struct {
		stanza.Base
		a    *Authenticator
		sess *session.Context
		resp *stanza.Response

		signature []byte
	}

	LogoutHandler struct {
		stanza.Base
		sess *session.Context
		resp *stanza.Response
	}
)

// Handlers returns fresh handlers for one request bound to sess and resp.
func (a *Authenticator) Handlers(sess *session.Context, resp *stanza.Response) []stanza.Handler {
	return []stanza.Handler{
		a.NewAuthHandler(sess, resp),
		a.NewAuthSignedHandler(sess, resp),
		NewLogoutHandler(sess, resp),
	}
}

func (a *Authenticator) NewAuthHandler(sess *session.Context, resp *stanza.Response) *AuthHandler {
	return &AuthHandler{
		Base: stanza.NewBase(AuthStanza),
		a:    a,
		sess: sess,
		resp: resp,
	}
}

func (h *AuthHandler) Handle(ctx context.Context, s *stanza.Stanza) bool {
	h.authType = s.Attr("type")
	h.user = s.Attr("user")
	h.serverUser = s.Attr("server_user")
	return h.authType != "" && h.user != "" && h.serverUser != ""
}

func (h *AuthHandler) Finished(ctx context.Context) error {
	if h.authType != TypeSignature {
		// The challenge is still issued below; clients that only look at
		// the auth element keep working.
		h.resp.AppendError("Unsupported authentication type.")
	}

	identity, err := h.a.identities.ResolveAccount(ctx, h.serverUser)
	if err != nil {
		log.Error("resolve account failed", zap.String("account", h.serverUser), zap.Error(err))
		h.resp.AppendError("unable to resolve account")
		return nil
	}

	token, err := h.a.newToken()
	if err != nil {
		return err
	}
	h.sess.IssueChallenge(token, h.user, h.serverUser, h.a.now())

	out := stanza.New(AuthStanza)
	if identity != nil && !knows(identity, h.user) {
		log.Info("login attempt by unknown user", zap.String("account", h.serverUser), zap.String("user", h.user))
		out.SetAttr("status", StatusUnknownUser)
	} else {
		out.SetAttr("status", StatusSignThisToken)
		out.SetAttr("sign_token", token)
	}
	metrics.Challenge(out.Attr("status"))

	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(out)
	h.resp.Append(b.Flush())
	return nil
}

func (a *Authenticator) NewAuthSignedHandler(sess *session.Context, resp *stanza.Response) *AuthSignedHandler {
	return &AuthSignedHandler{
		Base: stanza.NewBase(AuthSignedStanza),
		a:    a,
		sess: sess,
		resp: resp,
	}
}

func (h *AuthSignedHandler) Handle(ctx context.Context, s *stanza.Stanza) bool {
	encoded := s.Attr("signature")
	if encoded == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	h.signature = sig
	return true
}

func (h *AuthSignedHandler) Finished(ctx context.Context) error {
	branch, roles, message := h.login(ctx)

	h.sess.SetRoles(roles)
	if !h.sess.HasRole(session.RoleAccount) {
		h.sess.AccountUser = ""
	}

	status := StatusDenied
	if h.sess.Authenticated() {
		status = StatusOK
	}
	metrics.Auth(branch, status)
	log.Info("auth_signed",
		zap.String("branch", branch),
		zap.String("status", status),
		zap.String("account", h.sess.LoginServerUser),
		zap.String("user", h.sess.LoginUser))

	out := stanza.New(AuthSignedStanza).SetAttr("status", status)
	if message != "" {
		out.SetAttr("message", message)
	}

	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(out)
	for _, role := range h.sess.Roles {
		b.PushChildStanza(stanza.New(RoleStanza).SetText(role))
		b.CdDotDot()
	}
	h.resp.Append(b.Flush())
	return nil
}

// login picks the login branch for the pending challenge and verifies the
// signature. The token is consumed whatever the outcome.
func (h *AuthSignedHandler) login(ctx context.Context) (branch string, roles []string, message string) {
	token, ok := h.sess.ConsumeToken(h.a.now(), h.a.tokenTTL)
	if !ok {
		return "none", nil, "no pending challenge"
	}

	serverUser, loginUser := h.sess.LoginServerUser, h.sess.LoginUser
	identity, err := h.a.identities.ResolveAccount(ctx, serverUser)
	if err != nil {
		log.Error("resolve account failed", zap.String("account", serverUser), zap.Error(err))
		return "none", nil, "unable to resolve account"
	}

	switch {
	case identity == nil:
		if !h.setupLogin(ctx, serverUser, token) {
			return "setup", nil, "can't verify setup login"
		}
		h.sess.AccountUser = serverUser
		return "setup", []string{session.RoleAccount}, ""

	case identity.Owner.UID == loginUser:
		if !h.contactLogin(&identity.Owner, token) {
			return "account", nil, "can't verify account login"
		}
		h.sess.AccountUser = serverUser
		return "account", []string{session.RoleAccount}, ""

	default:
		contact := identity.FindContact(loginUser)
		if contact == nil {
			return "unknown", nil, fmt.Sprintf("can't find user: %s", loginUser)
		}
		if !h.contactLogin(contact, token) {
			return "contact", nil, "can't verify user login"
		}
		return "contact", []string{session.ContactRole(serverUser)}, ""
	}
}

func (h *AuthSignedHandler) setupLogin(ctx context.Context, account, token string) bool {
	key, err := h.a.setupKeys.SetupKey(ctx, account)
	if err != nil {
		log.Error("read setup key failed", zap.String("account", account), zap.Error(err))
		return false
	}
	if len(key) == 0 {
		return false
	}
	return h.a.verifier.Verify(key, []byte(token), h.signature)
}

func (h *AuthSignedHandler) contactLogin(contact *model.Contact, token string) bool {
	keys, ok := contact.MainKey()
	if !ok {
		return false
	}
	return h.a.verifier.Verify(keys.PublicKey, []byte(token), h.signature)
}

func NewLogoutHandler(sess *session.Context, resp *stanza.Response) *LogoutHandler {
	return &LogoutHandler{
		Base: stanza.NewBase(LogoutStanza),
		sess: sess,
		resp: resp,
	}
}

func (h *LogoutHandler) Finished(ctx context.Context) error {
	h.sess.Clear()

	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(stanza.New(LogoutStanza).SetAttr("status", StatusOK))
	h.resp.Append(b.Flush())
	return nil
}
