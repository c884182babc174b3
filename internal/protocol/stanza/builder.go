package stanza

import "bytes"

// Builder assembles an outgoing document by moving a cursor through it, the
// way one moves through a directory tree. The cursor is the last pushed
// stanza; path holds it together with its ancestors.
type Builder struct {
	roots []*Stanza
	path  []*Stanza
}

func NewBuilder() *Builder {
	return &Builder{}
}

// PushStanza appends s as a sibling at the current depth. Children pushed
// afterwards attach to s.
func (b *Builder) PushStanza(s *Stanza) *Builder {
	if len(b.path) <= 1 {
		b.roots = append(b.roots, s)
		b.path = append(b.path[:0], s)
		return b
	}
	parent := b.path[len(b.path)-2]
	parent.Children = append(parent.Children, s)
	b.path[len(b.path)-1] = s
	return b
}

// PushChildStanza appends s below the cursor and descends into it.
func (b *Builder) PushChildStanza(s *Stanza) *Builder {
	if len(b.path) == 0 {
		b.roots = append(b.roots, s)
	} else {
		cur := b.path[len(b.path)-1]
		cur.Children = append(cur.Children, s)
	}
	b.path = append(b.path, s)
	return b
}

// CdDotDot moves the cursor to its parent. At the top it does nothing.
func (b *Builder) CdDotDot() *Builder {
	if len(b.path) > 1 {
		b.path = b.path[:len(b.path)-1]
	}
	return b
}

// Depth is the number of stanzas on the cursor path.
func (b *Builder) Depth() int {
	return len(b.path)
}

// Stanzas returns the top-level stanzas built so far.
func (b *Builder) Stanzas() []*Stanza {
	return b.roots
}

// Flush serializes the document and resets the builder.
func (b *Builder) Flush() []byte {
	var buf bytes.Buffer
	// Writes into a bytes.Buffer only fail on invalid XML names, which the
	// handlers never produce.
	_ = Encode(&buf, b.roots...)
	b.roots = nil
	b.path = nil
	return buf.Bytes()
}
