// Package message implements put_message: a client delivers a signed message,
// optionally together with the definition and metadata of its channel, into
// the mailbox of the account it logged in to.
package message

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"mailbox_server/internal/metrics"
	"mailbox_server/internal/model"
	"mailbox_server/internal/protocol/stanza"
	"mailbox_server/internal/session"
	"mailbox_server/internal/utils/log"

	"go.uber.org/zap"
)

const (
	PutMessageStanza  = "put_message"
	MessageStanza     = "message"
	ChannelStanza     = "channel"
	ChannelInfoStanza = "channel_info"

	StatusReceived = "message_received"
	StatusDeclined = "declined"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type (
	// Mailbox stages writes to one account mailbox; nothing is visible
	// before Commit succeeds.
	Mailbox interface {
		AddChannel(ctx context.Context, channel string, pkg model.SignedPackage) error
		AddChannelInfo(ctx context.Context, channel string, pkg model.SignedPackage) error
		AddMessage(ctx context.Context, channel string, pkg model.SignedPackage) error
		Commit(ctx context.Context) error
	}

	MailboxOpener interface {
		OpenMailbox(ctx context.Context, account string) (Mailbox, error)
	}

	// SignedPackageHandler parses a signed package from its stanza.
	SignedPackageHandler struct {
		stanza.Base
		Package model.SignedPackage
	}

	PutMessageHandler struct {
		stanza.Base
		mailboxes MailboxOpener
		sess      *session.Context
		resp      *stanza.Response

		channelUID  string
		message     *SignedPackageHandler
		channel     *SignedPackageHandler
		channelInfo *SignedPackageHandler
	}
)

func NewSignedPackageHandler(name string, optional bool) *SignedPackageHandler {
	base := stanza.NewBase(name)
	if optional {
		base = stanza.NewOptionalBase(name)
	}
	return &SignedPackageHandler{Base: base}
}

func (h *SignedPackageHandler) Handle(ctx context.Context, s *stanza.Stanza) bool {
	for _, name := range []string{"uid", "sender", "signatureKey", "signature"} {
		if s.Attr(name) == "" {
			return false
		}
	}

	sig, err := base64.StdEncoding.DecodeString(s.Attr("signature"))
	if err != nil {
		return false
	}
	// Payloads may arrive line wrapped.
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(s.Text)), ""))
	if err != nil {
		return false
	}

	h.Package = model.SignedPackage{
		UID:          s.Attr("uid"),
		Sender:       s.Attr("sender"),
		SignatureKey: s.Attr("signatureKey"),
		Signature:    sig,
		Data:         data,
	}
	return true
}

// Handlers returns the put_message handler for one request.
func Handlers(mailboxes MailboxOpener, sess *session.Context, resp *stanza.Response) []stanza.Handler {
	return []stanza.Handler{NewPutMessageHandler(mailboxes, sess, resp)}
}

func NewPutMessageHandler(mailboxes MailboxOpener, sess *session.Context, resp *stanza.Response) *PutMessageHandler {
	h := &PutMessageHandler{
		Base:        stanza.NewBase(PutMessageStanza),
		mailboxes:   mailboxes,
		sess:        sess,
		resp:        resp,
		message:     NewSignedPackageHandler(MessageStanza, false),
		channel:     NewSignedPackageHandler(ChannelStanza, true),
		channelInfo: NewSignedPackageHandler(ChannelInfoStanza, true),
	}
	h.AddChild(h.message)
	h.AddChild(h.channel)
	h.AddChild(h.channelInfo)
	return h
}

func (h *PutMessageHandler) Handle(ctx context.Context, s *stanza.Stanza) bool {
	h.channelUID = s.Attr("channel")
	return h.channelUID != ""
}

func (h *PutMessageHandler) Finished(ctx context.Context) error {
	account := h.sess.LoginServerUser
	if !h.sess.CanAccess(account) {
		h.respond(ErrNotAuthenticated)
		return nil
	}

	mailbox, err := h.mailboxes.OpenMailbox(ctx, account)
	if err != nil {
		return err
	}

	h.respond(h.store(ctx, mailbox))
	return nil
}

// store runs the write transaction and stops at the first failing step.
func (h *PutMessageHandler) store(ctx context.Context, mailbox Mailbox) error {
	if h.channel.Handled() {
		if err := mailbox.AddChannel(ctx, h.channelUID, h.channel.Package); err != nil {
			return err
		}
	}
	if h.channelInfo.Handled() {
		if err := mailbox.AddChannelInfo(ctx, h.channelUID, h.channelInfo.Package); err != nil {
			return err
		}
	}
	if err := mailbox.AddMessage(ctx, h.channelUID, h.message.Package); err != nil {
		return err
	}
	return mailbox.Commit(ctx)
}

func (h *PutMessageHandler) respond(err error) {
	out := stanza.New(MessageStanza)
	if err == nil {
		out.SetAttr("status", StatusReceived)
	} else {
		log.Info("put_message declined",
			zap.String("account", h.sess.LoginServerUser),
			zap.String("channel", h.channelUID),
			zap.String("uid", h.message.Package.UID),
			zap.Error(err))
		out.SetAttr("status", StatusDeclined)
		out.SetAttr("error", err.Error())
	}
	metrics.Ingest(out.Attr("status"))

	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(out)
	h.resp.Append(b.Flush())
}
