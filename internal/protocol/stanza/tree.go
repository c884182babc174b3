package stanza

import (
	"context"
	"errors"
)

const (
	IqStanza = "iq"

	IqGet    = "get"
	IqSet    = "set"
	IqResult = "result"
	IqError  = "error"
)

// ErrInvalid is returned by Dispatch when the stanza or one of its required
// children failed validation.
var ErrInvalid = errors.New("stanza: invalid")

// Dispatch runs h against s and recursively against the matching children of
// s. Children are matched by name, unknown children are skipped and each child
// handler is used at most once. A parent's Finished only runs after all of its
// dispatched children finished and every required child was handled.
func Dispatch(ctx context.Context, h Handler, s *Stanza) error {
	if !h.Handle(ctx, s) {
		return ErrInvalid
	}

	var children []Handler
	if c, ok := h.(Composite); ok {
		children = c.Children()
	}

	used := make(map[Handler]bool, len(children))
	for _, child := range s.Children {
		ch := lookup(children, child.Name)
		if ch == nil || used[ch] {
			continue
		}
		used[ch] = true

		err := Dispatch(ctx, ch, child)
		if err != nil && !errors.Is(err, ErrInvalid) {
			return err
		}
		ch.setHandled(err == nil)
	}

	for _, ch := range children {
		if ch.Required() && !ch.Handled() {
			return ErrInvalid
		}
	}
	return h.Finished(ctx)
}

func lookup(handlers []Handler, name string) Handler {
	for _, h := range handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}
