package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mailbox_server/internal/session"

	"github.com/redis/go-redis/v9"
)

func TestMemoryStore_SaveLoadIsolated(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(time.Minute)

	a := session.New()
	a.IssueChallenge("tok-a", "alice", "bob", time.Now())
	if err := store.Save(ctx, "a", a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "b", session.New()); err != nil {
		t.Fatalf("save: %v", err)
	}

	a.SignatureToken = "changed after save"

	got, err := store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SignatureToken != "tok-a" {
		t.Fatalf("stored session aliases caller value: %q", got.SignatureToken)
	}

	got.LoginUser = "mallory"
	other, err := store.Load(ctx, "b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if other.LoginUser != "" {
		t.Fatal("sessions alias each other")
	}
}

func TestMemoryStore_MissingAndDeleted(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(time.Minute)

	got, err := store.Load(ctx, "nope")
	if err != nil || got != nil {
		t.Fatalf("load missing = %v, %v", got, err)
	}

	if err := store.Save(ctx, "x", session.New()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Load(ctx, "x"); got != nil {
		t.Fatal("deleted session still loads")
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := session.NewMemoryStore(time.Minute)
	store.Close()
	if err := store.Save(context.Background(), "x", session.New()); !errors.Is(err, session.ErrStoreClosed) {
		t.Fatalf("save after close = %v", err)
	}
}

type fakeKV struct {
	data map[string][]byte
	ttl  map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.([]byte)
	f.ttl[key] = ttl
	return nil
}

func (f *fakeKV) GetBytes(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (f *fakeKV) Del(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func TestRedisStore_UsesPrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	store := session.NewRedisStore(kv, 15*time.Minute, "")

	c := session.New()
	c.SetRoles([]string{session.RoleAccount})
	if err := store.Save(ctx, "id1", c); err != nil {
		t.Fatalf("save: %v", err)
	}
	if kv.ttl["mailbox:session:id1"] != 15*time.Minute {
		t.Fatalf("ttl = %v", kv.ttl)
	}

	got, err := store.Load(ctx, "id1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.HasRole(session.RoleAccount) {
		t.Fatalf("roles = %v", got.Roles)
	}

	if err := store.Delete(ctx, "id1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = store.Load(ctx, "id1")
	if err != nil || got != nil {
		t.Fatalf("load after delete = %v, %v", got, err)
	}
}

func TestIDs(t *testing.T) {
	a, b := session.NewID(), session.NewID()
	if a == b {
		t.Fatal("ids repeat")
	}
	if !session.ValidID(a) {
		t.Fatalf("%q not valid", a)
	}
	for _, bad := range []string{"", "abc", "../../etc"} {
		if session.ValidID(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestLocks_SerializeSameID(t *testing.T) {
	locks := session.NewLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("same")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("%d holders at once", maxSeen)
	}
}
