package stanza

import (
	"bytes"
	"encoding/xml"
)

// Response collects the flushed output of all handlers of one request.
type Response struct {
	buf bytes.Buffer
}

func (r *Response) Append(data []byte) {
	r.buf.Write(data)
}

// AppendError appends an error envelope carrying a human readable message.
func (r *Response) AppendError(message string) {
	r.Append(ErrorMessage(message))
}

func (r *Response) Empty() bool {
	return r.buf.Len() == 0
}

// Bytes returns the complete response document including the XML header.
func (r *Response) Bytes() []byte {
	out := make([]byte, 0, len(xml.Header)+r.buf.Len())
	out = append(out, xml.Header...)
	return append(out, r.buf.Bytes()...)
}

func (r *Response) Reset() {
	r.buf.Reset()
}

// NewIq returns an iq envelope of the given type.
func NewIq(typ string) *Stanza {
	return New(IqStanza).SetAttr("type", typ)
}

// ErrorMessage renders <iq type="error"><error message="..."/></iq>.
func ErrorMessage(message string) []byte {
	b := NewBuilder()
	b.PushStanza(NewIq(IqError))
	b.PushChildStanza(New("error").SetAttr("message", message))
	return b.Flush()
}
