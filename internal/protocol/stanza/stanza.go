// Package stanza implements the request/response element model of the
// mailbox protocol: parsing and writing stanza documents, a cursor based
// response builder and the handler tree that dispatches incoming stanzas.
package stanza

type (
	Attr struct {
		Name  string
		Value string
	}

	// Stanza is one protocol element. Attributes keep their document order.
	Stanza struct {
		Name     string
		Attrs    []Attr
		Text     []byte
		Children []*Stanza
	}
)

func New(name string) *Stanza {
	return &Stanza{Name: name}
}

// Attr returns the value of the named attribute or "" if it is absent.
func (s *Stanza) Attr(name string) string {
	v, _ := s.LookupAttr(name)
	return v
}

func (s *Stanza) LookupAttr(name string) (string, bool) {
	for _, a := range s.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute and returns s for chaining.
func (s *Stanza) SetAttr(name, value string) *Stanza {
	for i := range s.Attrs {
		if s.Attrs[i].Name == name {
			s.Attrs[i].Value = value
			return s
		}
	}
	s.Attrs = append(s.Attrs, Attr{Name: name, Value: value})
	return s
}

func (s *Stanza) SetText(text string) *Stanza {
	s.Text = []byte(text)
	return s
}

// Child returns the first child with the given name.
func (s *Stanza) Child(name string) *Stanza {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with the given name in document order.
func (s *Stanza) ChildrenNamed(name string) []*Stanza {
	var res []*Stanza
	for _, c := range s.Children {
		if c.Name == name {
			res = append(res, c)
		}
	}
	return res
}
