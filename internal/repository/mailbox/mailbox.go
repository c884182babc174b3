// Package mailbox stores signed packages in per-account mailboxes. Writes are
// staged on a Mailbox and become visible together on Commit.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailbox_server/internal/model"
	"mailbox_server/internal/protocol/message"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrDuplicateMessage = errors.New("message already stored")
	ErrNoChannel        = errors.New("channel id missing")
	ErrNoUID            = errors.New("package uid missing")
)

type (
	MailboxRepo struct {
		client   *mongo.Client
		channels *mongo.Collection
		infos    *mongo.Collection
		messages *mongo.Collection
		now      func() time.Time
	}

	// Mailbox is one open mailbox with its staged writes. Not safe for
	// concurrent use.
	Mailbox struct {
		repo    *MailboxRepo
		account string
		staged  []func(ctx mongo.SessionContext) error
	}
)

func NewMailboxRepo(client *mongo.Client, db *mongo.Database) *MailboxRepo {
	return &MailboxRepo{
		client:   client,
		channels: db.Collection("channels"),
		infos:    db.Collection("channel_infos"),
		messages: db.Collection("messages"),
		now:      time.Now,
	}
}

func (r *MailboxRepo) EnsureIndexes(ctx context.Context) error {
	channelKey := mongo.IndexModel{
		Keys:    bson.D{{Key: "account", Value: 1}, {Key: "channel", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.channels.Indexes().CreateOne(ctx, channelKey); err != nil {
		return fmt.Errorf("channels index: %w", err)
	}
	if _, err := r.infos.Indexes().CreateOne(ctx, channelKey); err != nil {
		return fmt.Errorf("channel_infos index: %w", err)
	}

	_, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "account", Value: 1},
			{Key: "channel", Value: 1},
			{Key: "package.uid", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("messages index: %w", err)
	}
	return nil
}

func (r *MailboxRepo) OpenMailbox(ctx context.Context, account string) (message.Mailbox, error) {
	if account == "" {
		return nil, fmt.Errorf("open mailbox: empty account")
	}
	return &Mailbox{repo: r, account: account}, nil
}

// Messages returns the stored messages of a channel in arrival order.
func (r *MailboxRepo) Messages(ctx context.Context, account, channel string) ([]model.MailboxEntry, error) {
	filter := bson.M{"account": account, "channel": channel}
	cur, err := r.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var res []model.MailboxEntry
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Mailbox) AddChannel(ctx context.Context, channel string, pkg model.SignedPackage) error {
	return m.stageUpsert(m.repo.channels, channel, pkg)
}

func (m *Mailbox) AddChannelInfo(ctx context.Context, channel string, pkg model.SignedPackage) error {
	return m.stageUpsert(m.repo.infos, channel, pkg)
}

func (m *Mailbox) AddMessage(ctx context.Context, channel string, pkg model.SignedPackage) error {
	if channel == "" {
		return ErrNoChannel
	}
	if pkg.UID == "" {
		return ErrNoUID
	}

	entry := model.MailboxEntry{
		Account:    m.account,
		Channel:    channel,
		Package:    pkg,
		ReceivedAt: m.repo.now(),
	}
	m.staged = append(m.staged, func(sc mongo.SessionContext) error {
		_, err := m.repo.messages.InsertOne(sc, entry)
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, pkg.UID)
		}
		return err
	})
	return nil
}

func (m *Mailbox) stageUpsert(coll *mongo.Collection, channel string, pkg model.SignedPackage) error {
	if channel == "" {
		return ErrNoChannel
	}

	filter := bson.M{"account": m.account, "channel": channel}
	doc := model.MailboxEntry{
		Account:    m.account,
		Channel:    channel,
		Package:    pkg,
		ReceivedAt: m.repo.now(),
	}
	m.staged = append(m.staged, func(sc mongo.SessionContext) error {
		_, err := coll.ReplaceOne(sc, filter, doc, options.Replace().SetUpsert(true))
		return err
	})
	return nil
}

// Commit applies all staged writes in one transaction.
func (m *Mailbox) Commit(ctx context.Context) error {
	if len(m.staged) == 0 {
		return nil
	}
	staged := m.staged
	m.staged = nil

	sess, err := m.repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("commit: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, write := range staged {
			if err := write(sc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
