package mailbox_test

import (
	"context"
	"errors"
	"testing"

	"mailbox_server/internal/model"
	"mailbox_server/internal/repository/mailbox"
)

func signed(uid string) model.SignedPackage {
	return model.SignedPackage{UID: uid, Sender: "alice-uid", SignatureKey: "a1", Data: []byte(uid)}
}

func TestMemoryMailbox_NothingVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	repo := mailbox.NewMemoryRepo()

	mb, err := repo.OpenMailbox(ctx, "bob")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mb.AddChannel(ctx, "general", signed("c1")); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	if err := mb.AddMessage(ctx, "general", signed("m1")); err != nil {
		t.Fatalf("add message: %v", err)
	}

	if msgs, _ := repo.Messages(ctx, "bob", "general"); len(msgs) != 0 {
		t.Fatalf("staged message visible: %v", msgs)
	}
	if _, ok := repo.Channel("bob", "general"); ok {
		t.Fatal("staged channel visible")
	}

	if err := mb.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	msgs, _ := repo.Messages(ctx, "bob", "general")
	if len(msgs) != 1 || msgs[0].Package.UID != "m1" || msgs[0].Account != "bob" {
		t.Fatalf("messages = %+v", msgs)
	}
	if c, ok := repo.Channel("bob", "general"); !ok || c.Package.UID != "c1" {
		t.Fatalf("channel = %+v, %v", c, ok)
	}
	if repo.Commits() != 1 {
		t.Fatalf("commits = %d", repo.Commits())
	}
}

func TestMemoryMailbox_DuplicateRejectsWholeCommit(t *testing.T) {
	ctx := context.Background()
	repo := mailbox.NewMemoryRepo()

	mb, _ := repo.OpenMailbox(ctx, "bob")
	_ = mb.AddMessage(ctx, "general", signed("m1"))
	if err := mb.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	mb, _ = repo.OpenMailbox(ctx, "bob")
	_ = mb.AddChannelInfo(ctx, "general", signed("i1"))
	_ = mb.AddMessage(ctx, "general", signed("m1"))
	if err := mb.Commit(ctx); !errors.Is(err, mailbox.ErrDuplicateMessage) {
		t.Fatalf("err = %v, want ErrDuplicateMessage", err)
	}
	if _, ok := repo.ChannelInfo("bob", "general"); ok {
		t.Fatal("channel info of failed commit stored")
	}
	if msgs, _ := repo.Messages(ctx, "bob", "general"); len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if repo.Commits() != 1 {
		t.Fatalf("commits = %d", repo.Commits())
	}
}

func TestMemoryMailbox_SameUIDInOtherChannelOrAccount(t *testing.T) {
	ctx := context.Background()
	repo := mailbox.NewMemoryRepo()

	for _, target := range []struct{ account, channel string }{
		{"bob", "general"},
		{"bob", "random"},
		{"carol", "general"},
	} {
		mb, _ := repo.OpenMailbox(ctx, target.account)
		_ = mb.AddMessage(ctx, target.channel, signed("m1"))
		if err := mb.Commit(ctx); err != nil {
			t.Fatalf("%s/%s: %v", target.account, target.channel, err)
		}
	}
}

func TestMemoryMailbox_DuplicateWithinOneCommit(t *testing.T) {
	ctx := context.Background()
	repo := mailbox.NewMemoryRepo()

	mb, _ := repo.OpenMailbox(ctx, "bob")
	_ = mb.AddMessage(ctx, "general", signed("m1"))
	_ = mb.AddMessage(ctx, "general", signed("m1"))
	if err := mb.Commit(ctx); !errors.Is(err, mailbox.ErrDuplicateMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryMailbox_Validation(t *testing.T) {
	ctx := context.Background()
	repo := mailbox.NewMemoryRepo()

	if _, err := repo.OpenMailbox(ctx, ""); err == nil {
		t.Fatal("opened mailbox without account")
	}
	mb, _ := repo.OpenMailbox(ctx, "bob")
	if err := mb.AddChannel(ctx, "", signed("c1")); !errors.Is(err, mailbox.ErrNoChannel) {
		t.Fatalf("AddChannel err = %v", err)
	}
	if err := mb.AddMessage(ctx, "general", signed("")); !errors.Is(err, mailbox.ErrNoUID) {
		t.Fatalf("AddMessage err = %v", err)
	}
	if err := mb.Commit(ctx); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if repo.Commits() != 0 {
		t.Fatalf("empty commit counted")
	}
}
