package stanza_test

import (
	"testing"

	"mailbox_server/internal/protocol/stanza"
)

func names(stanzas []*stanza.Stanza) []string {
	var res []string
	for _, s := range stanzas {
		res = append(res, s.Name)
	}
	return res
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuilder_CursorMoves(t *testing.T) {
	b := stanza.NewBuilder()
	b.PushStanza(stanza.New("iq"))
	b.PushChildStanza(stanza.New("a"))
	b.PushChildStanza(stanza.New("r1"))
	b.PushStanza(stanza.New("r2"))
	b.PushStanza(stanza.New("r3"))
	b.CdDotDot()
	b.PushStanza(stanza.New("b"))
	b.PushChildStanza(stanza.New("c"))

	roots := b.Stanzas()
	if got := names(roots); !equal(got, []string{"iq"}) {
		t.Fatalf("roots = %v", got)
	}
	iq := roots[0]
	if got := names(iq.Children); !equal(got, []string{"a", "b"}) {
		t.Fatalf("iq children = %v", got)
	}
	if got := names(iq.Children[0].Children); !equal(got, []string{"r1", "r2", "r3"}) {
		t.Fatalf("a children = %v", got)
	}
	if got := names(iq.Children[1].Children); !equal(got, []string{"c"}) {
		t.Fatalf("b children = %v", got)
	}
	if b.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", b.Depth())
	}
}

func TestBuilder_CdDotDotAtRootIsNoop(t *testing.T) {
	b := stanza.NewBuilder()
	b.CdDotDot()
	if b.Depth() != 0 {
		t.Fatalf("depth = %d on empty builder", b.Depth())
	}

	b.PushStanza(stanza.New("iq"))
	b.CdDotDot()
	b.CdDotDot()
	if b.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", b.Depth())
	}

	b.PushChildStanza(stanza.New("x"))
	if got := names(b.Stanzas()[0].Children); !equal(got, []string{"x"}) {
		t.Fatalf("iq children = %v", got)
	}
}

func TestBuilder_FlushSerializesAndResets(t *testing.T) {
	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(stanza.New("auth").SetAttr("status", "ok"))

	first := b.Flush()
	want := `<iq type="result"><auth status="ok"></auth></iq>`
	if string(first) != want {
		t.Fatalf("flush = %s, want %s", first, want)
	}
	if len(b.Stanzas()) != 0 || b.Depth() != 0 {
		t.Fatalf("builder not reset after flush")
	}

	b.PushStanza(stanza.New("other"))
	second := b.Flush()
	if string(second) != `<other></other>` {
		t.Fatalf("second flush = %s", second)
	}
	if string(first) != want {
		t.Fatalf("first document changed after reuse: %s", first)
	}
}

func TestBuilder_RoundTripThroughParser(t *testing.T) {
	b := stanza.NewBuilder()
	b.PushStanza(stanza.NewIq(stanza.IqResult))
	b.PushChildStanza(stanza.New("auth_signed").SetAttr("status", "ok"))
	for _, role := range []string{"account", "bob:contact_user"} {
		b.PushChildStanza(stanza.New("role").SetText(role))
		b.CdDotDot()
	}

	doc, err := stanza.ParseBytes(b.Flush())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	signed := doc[0].Child("auth_signed")
	if signed == nil {
		t.Fatal("auth_signed missing")
	}
	roles := signed.ChildrenNamed("role")
	if len(roles) != 2 || string(roles[0].Text) != "account" || string(roles[1].Text) != "bob:contact_user" {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}
