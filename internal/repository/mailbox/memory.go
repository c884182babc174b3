package mailbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailbox_server/internal/model"
	"mailbox_server/internal/protocol/message"
)

type (
	// MemoryRepo keeps mailboxes in process memory with the same commit
	// semantics as MailboxRepo.
	MemoryRepo struct {
		mu       sync.Mutex
		channels map[channelKey]model.MailboxEntry
		infos    map[channelKey]model.MailboxEntry
		messages map[channelKey][]model.MailboxEntry
		commits  int
		now      func() time.Time
	}

	channelKey struct {
		account string
		channel string
	}

	MemoryMailbox struct {
		repo     *MemoryRepo
		account  string
		channels []model.MailboxEntry
		infos    []model.MailboxEntry
		messages []model.MailboxEntry
	}
)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		channels: make(map[channelKey]model.MailboxEntry),
		infos:    make(map[channelKey]model.MailboxEntry),
		messages: make(map[channelKey][]model.MailboxEntry),
		now:      time.Now,
	}
}

func (r *MemoryRepo) OpenMailbox(ctx context.Context, account string) (message.Mailbox, error) {
	if account == "" {
		return nil, fmt.Errorf("open mailbox: empty account")
	}
	return &MemoryMailbox{repo: r, account: account}, nil
}

func (r *MemoryRepo) Messages(ctx context.Context, account, channel string) ([]model.MailboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MailboxEntry(nil), r.messages[channelKey{account, channel}]...), nil
}

// Channel returns the stored channel definition, if any.
func (r *MemoryRepo) Channel(account, channel string) (model.MailboxEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[channelKey{account, channel}]
	return e, ok
}

func (r *MemoryRepo) ChannelInfo(account, channel string) (model.MailboxEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.infos[channelKey{account, channel}]
	return e, ok
}

// Commits counts successful non-empty commits.
func (r *MemoryRepo) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (m *MemoryMailbox) entry(channel string, pkg model.SignedPackage) model.MailboxEntry {
	return model.MailboxEntry{
		Account:    m.account,
		Channel:    channel,
		Package:    pkg,
		ReceivedAt: m.repo.now(),
	}
}

func (m *MemoryMailbox) AddChannel(ctx context.Context, channel string, pkg model.SignedPackage) error {
	if channel == "" {
		return ErrNoChannel
	}
	m.channels = append(m.channels, m.entry(channel, pkg))
	return nil
}

func (m *MemoryMailbox) AddChannelInfo(ctx context.Context, channel string, pkg model.SignedPackage) error {
	if channel == "" {
		return ErrNoChannel
	}
	m.infos = append(m.infos, m.entry(channel, pkg))
	return nil
}

func (m *MemoryMailbox) AddMessage(ctx context.Context, channel string, pkg model.SignedPackage) error {
	if channel == "" {
		return ErrNoChannel
	}
	if pkg.UID == "" {
		return ErrNoUID
	}
	m.messages = append(m.messages, m.entry(channel, pkg))
	return nil
}

// Commit checks every staged message for duplicates before applying any
// write, so a failed commit leaves the repo untouched.
func (m *MemoryMailbox) Commit(ctx context.Context) error {
	r := m.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		m.channels, m.infos, m.messages = nil, nil, nil
	}()

	if len(m.channels)+len(m.infos)+len(m.messages) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, e := range m.messages {
		id := e.Channel + "\x00" + e.Package.UID
		if seen[id] || r.hasMessage(e) {
			return fmt.Errorf("commit: %w: %s", ErrDuplicateMessage, e.Package.UID)
		}
		seen[id] = true
	}

	for _, e := range m.channels {
		r.channels[channelKey{e.Account, e.Channel}] = e
	}
	for _, e := range m.infos {
		r.infos[channelKey{e.Account, e.Channel}] = e
	}
	for _, e := range m.messages {
		k := channelKey{e.Account, e.Channel}
		r.messages[k] = append(r.messages[k], e)
	}
	r.commits++
	return nil
}

func (r *MemoryRepo) hasMessage(e model.MailboxEntry) bool {
	for _, stored := range r.messages[channelKey{e.Account, e.Channel}] {
		if stored.Package.UID == e.Package.UID {
			return true
		}
	}
	return false
}
