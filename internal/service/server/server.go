package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"mailbox_server/internal/metrics"
	"mailbox_server/internal/protocol/auth"
	"mailbox_server/internal/protocol/message"
	"mailbox_server/internal/protocol/stanza"
	"mailbox_server/internal/session"
	"mailbox_server/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const contentType = "application/xml; charset=utf-8"

var errMalformed = errors.New("malformed stanza document")

type (
	Options struct {
		Addr           string
		MaxBodyBytes   int64
		AllowedOrigins []string
		CookieName     string
		SecureCookie   bool
		SessionIdle    time.Duration
	}

	HttpServer struct {
		opts      Options
		sessions  session.Store
		locks     *session.Locks
		auth      *auth.Authenticator
		mailboxes message.MailboxOpener
		upgrader  websocket.Upgrader
		srv       *http.Server
	}
)

func NewHttpServer(opts Options, sessions session.Store, authenticator *auth.Authenticator, mailboxes message.MailboxOpener) *HttpServer {
	s := &HttpServer{
		opts:      opts,
		sessions:  sessions,
		locks:     session.NewLocks(),
		auth:      authenticator,
		mailboxes: mailboxes,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/stanza", s.HandleStanza()).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// Run serves until Shutdown is called.
func (s *HttpServer) Run() error {
	log.Info("listening", zap.String("addr", s.opts.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// HandleStanza processes one stanza document per POST. The session travels
// in a cookie.
func (s *HttpServer) HandleStanza() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		defer func() {
			metrics.ObserveRequest("http", time.Since(start).Seconds())
		}()

		id, sess, unlock, err := s.loadSession(ctx, r)
		if err != nil {
			log.Error("load session failed", zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		defer unlock()

		body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		rolesBefore := slices.Clone(sess.Roles)

		out, procErr := s.process(ctx, sess, body)
		if procErr != nil && !errors.Is(procErr, errMalformed) {
			log.Error("process stanza failed", zap.Error(procErr))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		id, err = s.saveSession(ctx, id, sess, rolesBefore)
		if err != nil {
			log.Error("save session failed", zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		s.setCookie(w, id)

		w.Header().Set("Content-Type", contentType)
		if procErr != nil {
			w.WriteHeader(http.StatusBadRequest)
		}
		w.Write(out)
	}
}

// HandleWS keeps one session for the lifetime of the connection. Every text
// frame is a stanza document and is answered by one frame.
func (s *HttpServer) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		conn.SetReadLimit(s.opts.MaxBodyBytes)

		metrics.WebsocketOpened()
		defer metrics.WebsocketClosed()
		s.processWSMessages(r.Context(), conn)
	}
}

func (s *HttpServer) processWSMessages(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	sess := session.New()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("web socket closed", zap.Error(err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		start := time.Now()
		out, err := s.process(ctx, sess, bytesReader(data))
		metrics.ObserveRequest("websocket", time.Since(start).Seconds())
		if err != nil && !errors.Is(err, errMalformed) {
			log.Error("process stanza failed", zap.Error(err))
			out = errorDocument("internal error")
		}

		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			log.Debug("web socket write failed", zap.Error(err))
			return
		}
	}
}

// process runs one document through a fresh set of handlers bound to sess.
func (s *HttpServer) process(ctx context.Context, sess *session.Context, body io.Reader) ([]byte, error) {
	var resp stanza.Response

	doc, err := stanza.Parse(body)
	if err != nil {
		log.Debug("parse stanza document failed", zap.Error(err))
		resp.AppendError("malformed document")
		return resp.Bytes(), fmt.Errorf("%w: %v", errMalformed, err)
	}

	handlers := s.auth.Handlers(sess, &resp)
	handlers = append(handlers, message.Handlers(s.mailboxes, sess, &resp)...)

	router := stanza.NewRouter(handlers...).OnDispatch(func(name string, err error) {
		switch {
		case err == nil:
			metrics.Stanza(name, "ok")
		case errors.Is(err, stanza.ErrInvalid):
			metrics.Stanza(name, "invalid")
		default:
			metrics.Stanza(name, "error")
		}
	})
	if err := router.Process(ctx, doc, &resp); err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}

func (s *HttpServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin) {
		return true
	}
	return sameHost(origin, r.Host)
}
