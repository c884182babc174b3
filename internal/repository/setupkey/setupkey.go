// Package setupkey reads and writes the keys used to claim an account before
// it has a profile. Each key lives in <dir>/<account>/signature.pub.
package setupkey

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"mailbox_server/internal/cryptographic/signature"
)

const fileName = "signature.pub"

var (
	ErrInvalidAccount = errors.New("setupkey: invalid account name")

	accountPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)
)

type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func ValidAccount(account string) bool {
	return len(account) <= 255 && accountPattern.MatchString(account)
}

func (d *Dir) path(account string) (string, error) {
	if !ValidAccount(account) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return filepath.Join(d.root, account, fileName), nil
}

// SetupKey returns the provisioned key, or nil if there is none.
func (d *Dir) SetupKey(ctx context.Context, account string) ([]byte, error) {
	p, err := d.path(account)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Provision stores key for account, replacing an earlier one. The key must
// be in a format the login verifier understands.
func (d *Dir) Provision(account string, key []byte) error {
	p, err := d.path(account)
	if err != nil {
		return err
	}
	if _, err := signature.ParsePublicKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, key, 0o600)
}

// Revoke removes the key of account. A missing key is not an error.
func (d *Dir) Revoke(account string) error {
	p, err := d.path(account)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
