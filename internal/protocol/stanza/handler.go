package stanza

import "context"

type (
	// Handler validates and consumes one named stanza.
	//
	// Handle inspects the stanza's attributes and text and reports whether it
	// is acceptable. Finished runs once all of the stanza's children have been
	// dispatched; it returns an error only when a collaborator could not be
	// reached at all, which aborts the whole request.
	Handler interface {
		Name() string
		Handle(ctx context.Context, s *Stanza) bool
		Finished(ctx context.Context) error
		Required() bool
		Handled() bool

		setHandled(bool)
	}

	// Composite is a Handler that owns child handlers.
	Composite interface {
		Handler
		Children() []Handler
	}

	// Base carries the bookkeeping shared by all handlers. Embed it and
	// override Handle and, if needed, Finished.
	Base struct {
		name     string
		optional bool
		handled  bool
		children []Handler
	}
)

func NewBase(name string) Base {
	return Base{name: name}
}

func NewOptionalBase(name string) Base {
	return Base{name: name, optional: true}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Required() bool {
	return !b.optional
}

func (b *Base) Handled() bool {
	return b.handled
}

func (b *Base) setHandled(handled bool) {
	b.handled = handled
}

func (b *Base) Handle(ctx context.Context, s *Stanza) bool {
	return true
}

func (b *Base) Finished(ctx context.Context) error {
	return nil
}

// AddChild registers a child handler. Names must be unique per parent.
func (b *Base) AddChild(h Handler) {
	b.children = append(b.children, h)
}

func (b *Base) Children() []Handler {
	return b.children
}
