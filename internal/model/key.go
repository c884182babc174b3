package model

type (
	// KeySet is one registered key of a contact. PublicKey holds the encoded
	// key as it was uploaded (PEM, OpenSSH authorized key or raw bytes).
	KeySet struct {
		ID          string `bson:"id" json:"id"`
		Certificate string `bson:"certificate" json:"certificate"`
		PublicKey   []byte `bson:"public_key" json:"public_key"`
	}
)
