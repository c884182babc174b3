package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// SignedPackage is a payload together with its sender and the sender's
	// signature over it.
	SignedPackage struct {
		UID          string `bson:"uid" json:"uid"`
		Sender       string `bson:"sender" json:"sender"`
		SignatureKey string `bson:"signature_key" json:"signature_key"`
		Signature    []byte `bson:"signature" json:"signature"`
		Data         []byte `bson:"data" json:"data"`
	}

	// MailboxEntry is the stored form of a package in an account mailbox.
	MailboxEntry struct {
		ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
		Account    string             `bson:"account" json:"account"`
		Channel    string             `bson:"channel" json:"channel"`
		Package    SignedPackage      `bson:"package" json:"package"`
		ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
	}
)
