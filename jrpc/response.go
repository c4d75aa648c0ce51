package jrpc

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

var (
	errNoOutcome   = errors.New("jrpc: response has neither result nor error")
	errTwoOutcomes = errors.New("jrpc: response has both result and error")
)

// Response is the reply to a call. Exactly one of Result and Error is set.
type Response struct {
	Result json.RawMessage
	Error  *Error
	ID     json.RawMessage
}

// Ok creates a successful response, a nil result is sent as null.
func Ok(result json.RawMessage, id json.RawMessage) *Response {
	if result == nil {
		result = nullID
	}
	return &Response{Result: result, ID: id}
}

// Fail creates an error response, a nil id is sent as null.
func Fail(err *Error, id json.RawMessage) *Response {
	return &Response{Error: err, ID: id}
}

// Err returns the error member as an error value, or nil.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// MarshalJSON encodes the response with a fixed member order: jsonrpc, result or error, id.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Result == nil && r.Error == nil {
		return nil, errNoOutcome
	}
	if r.Result != nil && r.Error != nil {
		return nil, errTwoOutcomes
	}

	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0",`)
	if r.Error != nil {
		buf.WriteString(`"error":`)
		enc, err := json.Marshal(r.Error)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	} else {
		if !json.Valid(r.Result) {
			return nil, errors.New("jrpc: result is not valid JSON")
		}
		buf.WriteString(`"result":`)
		buf.Write(r.Result)
	}
	buf.WriteString(`,"id":`)
	if r.ID == nil {
		buf.Write(nullID)
	} else {
		buf.Write(r.ID)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Marshal is a shorthand for MarshalJSON.
func (r *Response) Marshal() ([]byte, error) {
	return r.MarshalJSON()
}

// ParseResponse decodes a response, the counterpart of Marshal used by clients.
func ParseResponse(data []byte) (*Response, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "jrpc: cannot parse response")
	}
	if string(v.GetStringBytes("jsonrpc")) != Version {
		return nil, errors.New("jrpc: response is not version 2.0")
	}

	resp := &Response{ID: nullID}
	if iv := v.Get("id"); iv != nil {
		resp.ID = iv.MarshalTo(nil)
	}
	if rv := v.Get("result"); rv != nil {
		resp.Result = rv.MarshalTo(nil)
	}
	if ev := v.Get("error"); ev != nil && ev.Type() != fastjson.TypeNull {
		resp.Error = &Error{}
		if err := json.Unmarshal(ev.MarshalTo(nil), resp.Error); err != nil {
			return nil, errors.Wrap(err, "jrpc: malformed error member")
		}
	}
	if (resp.Result == nil) == (resp.Error == nil) {
		return nil, errors.New("jrpc: response must have exactly one of result and error")
	}
	return resp, nil
}
