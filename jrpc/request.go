package jrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

const Version = "2.0"

var (
	nullID     = json.RawMessage("null")
	parserPool fastjson.ParserPool
)

// Request is a decoded call or notification.
//
// ID is nil when the member was absent or null, which makes the request a notification.
type Request struct {
	Method string
	Params []json.RawMessage
	ID     json.RawMessage
}

func (r *Request) IsNotification() bool {
	return r.ID == nil
}

func (r *Request) String() string {
	if r.IsNotification() {
		return fmt.Sprintf("%s/%d", r.Method, len(r.Params))
	}
	return fmt.Sprintf("%s/%d #%s", r.Method, len(r.Params), r.ID)
}

// NewCall builds a request expecting a response, each param is encoded in order. A nil id
// is written as null, which servers treat as a notification.
func NewCall(id any, method string, params ...any) (*Request, error) {
	r, err := NewNotification(method, params...)
	if err != nil {
		return nil, err
	}
	switch v := id.(type) {
	case nil:
		r.ID = nullID
	case json.RawMessage:
		r.ID = v
	default:
		if r.ID, err = json.Marshal(id); err != nil {
			return nil, errors.Wrap(err, "jrpc: cannot encode id")
		}
	}
	return r, nil
}

// NewNotification builds a request that never receives a response.
func NewNotification(method string, params ...any) (*Request, error) {
	r := &Request{Method: method, Params: make([]json.RawMessage, len(params))}
	for i, p := range params {
		if raw, ok := p.(json.RawMessage); ok {
			r.Params[i] = raw
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, errors.Wrapf(err, "jrpc: cannot encode parameter %d", i)
		}
		r.Params[i] = data
	}
	return r, nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0","method":`)
	method, err := json.Marshal(r.Method)
	if err != nil {
		return nil, err
	}
	buf.Write(method)
	buf.WriteString(`,"params":[`)
	for i, p := range r.Params {
		if i != 0 {
			buf.WriteByte(',')
		}
		if len(p) == 0 {
			p = nullID
		}
		buf.Write(p)
	}
	buf.WriteByte(']')
	if r.ID != nil {
		buf.WriteString(`,"id":`)
		buf.Write(r.ID)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes one message. Exactly one of the following holds on return:
//
//   - req != nil: a version 2.0 request to be dispatched;
//   - resp != nil: an error response to be sent back as-is;
//   - both nil: a malformed notification which must be dropped silently.
func Parse(data []byte) (req *Request, resp *Response) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, Fail(ParseError(err.Error()), nil)
	}
	version, req, err := decodeRequest(v)
	if err != nil {
		return nil, Fail(ParseError(err.Error()), nil)
	}
	if version != Version {
		if req.IsNotification() {
			return nil, nil
		}
		return nil, Fail(InvalidRequest(version), req.ID)
	}
	return req, nil
}

func decodeRequest(v *fastjson.Value) (version string, req *Request, err error) {
	obj, err := v.Object()
	if err != nil {
		return "", nil, errors.New("request must be an object")
	}

	jv := obj.Get("jsonrpc")
	if jv == nil {
		return "", nil, errors.New("missing field `jsonrpc`")
	}
	vb, err := jv.StringBytes()
	if err != nil {
		return "", nil, errors.Errorf("field `jsonrpc` must be a string, got %s", jv.Type())
	}
	version = string(vb)

	req = &Request{}
	mv := obj.Get("method")
	if mv == nil {
		return "", nil, errors.New("missing field `method`")
	}
	mb, err := mv.StringBytes()
	if err != nil {
		return "", nil, errors.Errorf("field `method` must be a string, got %s", mv.Type())
	}
	req.Method = string(mb)

	if pv := obj.Get("params"); pv != nil && pv.Type() != fastjson.TypeNull {
		items, err := pv.Array()
		if err != nil {
			return "", nil, errors.Errorf("field `params` must be an array, got %s", pv.Type())
		}
		req.Params = make([]json.RawMessage, len(items))
		for i, item := range items {
			req.Params[i] = item.MarshalTo(nil)
		}
	}

	if iv := obj.Get("id"); iv != nil {
		switch iv.Type() {
		case fastjson.TypeNull:
		case fastjson.TypeString, fastjson.TypeNumber:
			req.ID = iv.MarshalTo(nil)
		default:
			return "", nil, errors.Errorf("field `id` must be a string, number or null, got %s", iv.Type())
		}
	}
	return version, req, nil
}
