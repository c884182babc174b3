package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	Contact struct {
		UID       string   `bson:"uid" json:"uid"`
		MainKeyID string   `bson:"main_key_id" json:"main_key_id"`
		Keys      []KeySet `bson:"keys" json:"keys"`
		Address   string   `bson:"address,omitempty" json:"address,omitempty"`
	}

	// Identity is the profile of one server account: the owning contact and
	// the contacts it knows.
	Identity struct {
		ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
		Account  string             `bson:"account" json:"account"`
		Owner    Contact            `bson:"owner" json:"owner"`
		Contacts []Contact          `bson:"contacts" json:"contacts"`
	}
)

// FindContact returns the contact with the given uid, or nil.
func (i *Identity) FindContact(uid string) *Contact {
	for k := range i.Contacts {
		if i.Contacts[k].UID == uid {
			return &i.Contacts[k]
		}
	}
	return nil
}

// KeySet looks up a key by id.
func (c *Contact) KeySet(keyID string) (KeySet, bool) {
	for _, k := range c.Keys {
		if k.ID == keyID {
			return k, true
		}
	}
	return KeySet{}, false
}

// MainKey is KeySet(c.MainKeyID).
func (c *Contact) MainKey() (KeySet, bool) {
	return c.KeySet(c.MainKeyID)
}
