package identity

import (
	"fmt"
	"os"

	"mailbox_server/internal/model"

	"gopkg.in/yaml.v3"
)

type (
	// File is the YAML form of an identity used by the import command.
	File struct {
		Account  string        `yaml:"account"`
		Owner    ContactFile   `yaml:"owner"`
		Contacts []ContactFile `yaml:"contacts"`
	}

	ContactFile struct {
		UID       string    `yaml:"uid"`
		MainKeyID string    `yaml:"main_key_id"`
		Address   string    `yaml:"address"`
		Keys      []KeyFile `yaml:"keys"`
	}

	KeyFile struct {
		ID          string `yaml:"id"`
		Certificate string `yaml:"certificate"`
		PublicKey   string `yaml:"public_key"`
	}
)

// LoadFile reads an identity description from path.
func LoadFile(path string) (*model.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (*model.Identity, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}

	identity := &model.Identity{
		Account: f.Account,
		Owner:   f.Owner.contact(),
	}
	for _, c := range f.Contacts {
		identity.Contacts = append(identity.Contacts, c.contact())
	}
	if identity.Account == "" || identity.Owner.UID == "" {
		return nil, ErrInvalidIdentity
	}
	return identity, nil
}

func (c ContactFile) contact() model.Contact {
	out := model.Contact{
		UID:       c.UID,
		MainKeyID: c.MainKeyID,
		Address:   c.Address,
	}
	for _, k := range c.Keys {
		out.Keys = append(out.Keys, model.KeySet{
			ID:          k.ID,
			Certificate: k.Certificate,
			PublicKey:   []byte(k.PublicKey),
		})
	}
	return out
}
