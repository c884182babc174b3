package stanza

import (
	"context"
	"errors"
	"fmt"
)

// Router feeds the children of each iq envelope of a request document to the
// request's top-level handlers.
type Router struct {
	handlers []Handler
	observe  func(name string, err error)
}

func NewRouter(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

// OnDispatch registers fn to be called after every top-level dispatch.
func (r *Router) OnDispatch(fn func(name string, err error)) *Router {
	r.observe = fn
	return r
}

// Process dispatches doc and writes all output to resp. Validation failures
// become error envelopes; only collaborator faults are returned.
func (r *Router) Process(ctx context.Context, doc []*Stanza, resp *Response) error {
	used := make(map[Handler]bool, len(r.handlers))
	for _, iq := range doc {
		if iq.Name != IqStanza {
			resp.AppendError(fmt.Sprintf("unexpected stanza: %s", iq.Name))
			continue
		}
		switch iq.Attr("type") {
		case IqGet, IqSet:
		default:
			resp.AppendError(fmt.Sprintf("unsupported iq type: %q", iq.Attr("type")))
			continue
		}

		for _, child := range iq.Children {
			h := lookup(r.handlers, child.Name)
			if h == nil || used[h] {
				continue
			}
			used[h] = true

			err := Dispatch(ctx, h, child)
			if r.observe != nil {
				r.observe(child.Name, err)
			}
			if errors.Is(err, ErrInvalid) {
				resp.AppendError(fmt.Sprintf("invalid %s stanza", child.Name))
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: %w", child.Name, err)
			}
			h.setHandled(true)
		}
	}

	if resp.Empty() {
		resp.AppendError("unsupported request")
	}
	return nil
}
