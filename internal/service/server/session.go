package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"slices"

	"mailbox_server/internal/protocol/stanza"
	"mailbox_server/internal/session"
)

// loadSession returns the session named by the request cookie, locked for
// the caller. Unknown or malformed ids get a fresh session under a new id so
// a client can never pick its own id.
func (s *HttpServer) loadSession(ctx context.Context, r *http.Request) (string, *session.Context, func(), error) {
	id := ""
	if c, err := r.Cookie(s.opts.CookieName); err == nil && session.ValidID(c.Value) {
		id = c.Value
	}

	if id != "" {
		unlock := s.locks.Lock(id)
		sess, err := s.sessions.Load(ctx, id)
		if err != nil {
			unlock()
			return "", nil, nil, err
		}
		if sess != nil {
			return id, sess, unlock, nil
		}
		unlock()
	}

	id = session.NewID()
	return id, session.New(), s.locks.Lock(id), nil
}

// saveSession stores sess. When the request changed a non-empty role set the
// session moves to a new id.
func (s *HttpServer) saveSession(ctx context.Context, id string, sess *session.Context, rolesBefore []string) (string, error) {
	if sess.Authenticated() && !slices.Equal(rolesBefore, sess.Roles) {
		if err := s.sessions.Delete(ctx, id); err != nil {
			return "", err
		}
		id = session.NewID()
	}
	if err := s.sessions.Save(ctx, id, sess); err != nil {
		return "", err
	}
	return id, nil
}

func (s *HttpServer) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.opts.SessionIdle.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

func errorDocument(message string) []byte {
	var resp stanza.Response
	resp.AppendError(message)
	return resp.Bytes()
}
