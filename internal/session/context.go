// Package session holds the per-client state that links the two steps of the
// authentication handshake and records the roles a client was granted.
package session

import (
	"slices"
	"time"
)

const (
	RoleAccount = "account"

	contactRoleSuffix = ":contact_user"
)

// ContactRole is the role of a known contact acting under serverUser.
func ContactRole(serverUser string) string {
	return serverUser + contactRoleSuffix
}

// Context is the mutable state of one client session. It is owned by a
// single request at a time; the server serializes access per session id.
type Context struct {
	SignatureToken  string    `cbor:"sign_token" json:"sign_token"`
	TokenIssuedAt   time.Time `cbor:"token_issued_at" json:"token_issued_at"`
	LoginUser       string    `cbor:"login_user" json:"login_user"`
	LoginServerUser string    `cbor:"login_server_user" json:"login_server_user"`
	AccountUser     string    `cbor:"account_user" json:"account_user"`
	Roles           []string  `cbor:"roles" json:"roles"`
}

func New() *Context {
	return &Context{}
}

// Clear resets every field to its zero value.
func (c *Context) Clear() {
	*c = Context{}
}

// IssueChallenge records a freshly issued token and the identities claimed
// by the client.
func (c *Context) IssueChallenge(token, loginUser, serverUser string, now time.Time) {
	c.SignatureToken = token
	c.TokenIssuedAt = now
	c.LoginUser = loginUser
	c.LoginServerUser = serverUser
}

// ConsumeToken returns the pending token and forgets it. ok is false when no
// token is pending or it is older than ttl. A ttl of zero disables expiry.
func (c *Context) ConsumeToken(now time.Time, ttl time.Duration) (token string, ok bool) {
	token, issued := c.SignatureToken, c.TokenIssuedAt
	c.SignatureToken = ""
	c.TokenIssuedAt = time.Time{}

	if token == "" {
		return "", false
	}
	if ttl > 0 && now.Sub(issued) > ttl {
		return "", false
	}
	return token, true
}

// SetRoles replaces the granted roles.
func (c *Context) SetRoles(roles []string) {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	c.Roles = out
}

func (c *Context) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

func (c *Context) Authenticated() bool {
	return len(c.Roles) > 0
}

// CanAccess reports whether the granted roles cover the mailbox of account:
// the account role obtained for that same account, or a contact role issued
// under it.
func (c *Context) CanAccess(account string) bool {
	if account == "" {
		return false
	}
	if c.HasRole(RoleAccount) && c.AccountUser == account {
		return true
	}
	return c.HasRole(ContactRole(account))
}
