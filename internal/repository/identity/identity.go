package identity

import (
	"context"
	"errors"
	"fmt"

	"mailbox_server/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrInvalidIdentity = errors.New("identity: account and owner uid are required")

type (
	IdentityRepo struct {
		collection *mongo.Collection
	}
)

func NewIdentityRepo(db *mongo.Database) *IdentityRepo {
	return &IdentityRepo{
		collection: db.Collection("identities"),
	}
}

// EnsureIndexes makes account the unique key of the collection.
func (r *IdentityRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ResolveAccount returns the profile of account, or nil if it has none.
func (r *IdentityRepo) ResolveAccount(ctx context.Context, account string) (*model.Identity, error) {
	filter := bson.M{
		"account": account,
	}

	var identity model.Identity
	err := r.collection.FindOne(ctx, filter).Decode(&identity)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &identity, nil
}

// Save creates or replaces the profile of identity.Account.
func (r *IdentityRepo) Save(ctx context.Context, identity *model.Identity) error {
	if identity.Account == "" || identity.Owner.UID == "" {
		return ErrInvalidIdentity
	}

	filter := bson.M{
		"account": identity.Account,
	}
	doc := *identity
	doc.ID = primitive.NilObjectID

	_, err := r.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save identity %s: %w", identity.Account, err)
	}
	return nil
}

func (r *IdentityRepo) Delete(ctx context.Context, account string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"account": account})
	return err
}
