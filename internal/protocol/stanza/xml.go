package stanza

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const maxDepth = 32

var (
	ErrEmptyDocument = errors.New("stanza: empty document")
	ErrTooDeep       = errors.New("stanza: document nested too deeply")
)

// Parse reads every top-level element of an XML stanza document.
func Parse(r io.Reader) ([]*Stanza, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		roots []*Stanza
		stack []*Stanza
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stanza: parse: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxDepth {
				return nil, ErrTooDeep
			}
			s := &Stanza{Name: t.Name.Local}
			for _, a := range t.Attr {
				s.Attrs = append(s.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				roots = append(roots, s)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, s)
			}
			stack = append(stack, s)
		case xml.EndElement:
			cur := stack[len(stack)-1]
			cur.Text = bytes.TrimSpace(cur.Text)
			if len(cur.Text) == 0 {
				cur.Text = nil
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.Text = append(cur.Text, t...)
			}
		case xml.Directive:
			return nil, fmt.Errorf("stanza: directives are not allowed")
		}
	}

	if len(roots) == 0 {
		return nil, ErrEmptyDocument
	}
	return roots, nil
}

func ParseBytes(data []byte) ([]*Stanza, error) {
	return Parse(bytes.NewReader(data))
}

// Encode writes the stanzas and their subtrees to w without an XML header.
func Encode(w io.Writer, stanzas ...*Stanza) error {
	enc := xml.NewEncoder(w)
	for _, s := range stanzas {
		if err := encode(enc, s); err != nil {
			return err
		}
	}
	return enc.Flush()
}

func encode(enc *xml.Encoder, s *Stanza) error {
	start := xml.StartElement{Name: xml.Name{Local: s.Name}}
	for _, a := range s.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if len(s.Text) > 0 {
		if err := enc.EncodeToken(xml.CharData(s.Text)); err != nil {
			return err
		}
	}
	for _, c := range s.Children {
		if err := encode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Marshal is Encode into a fresh buffer.
func Marshal(stanzas ...*Stanza) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, stanzas...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
