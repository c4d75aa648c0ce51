package jrpc

import (
	"strings"
	"testing"

	"github.com/nsf/jsondiff"
)

func expectJSON(t *testing.T, got []byte, want string) {
	t.Helper()
	opts := jsondiff.DefaultConsoleOptions()
	if diff, desc := jsondiff.Compare(got, []byte(want), &opts); diff != jsondiff.FullMatch {
		t.Fatalf("unexpected JSON: %s\n%s", diff, desc)
	}
}

func TestParseRequests(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		method string
		params int
		id     string // empty for notifications
	}{
		{"call", `{"jsonrpc":"2.0","method":"add","params":[1,2],"id":1}`, "add", 2, "1"},
		{"string id", `{"jsonrpc":"2.0","method":"m","params":[],"id":"abc"}`, "m", 0, `"abc"`},
		{"null id", `{"jsonrpc":"2.0","method":"m","id":null}`, "m", 0, ""},
		{"notification", `{"jsonrpc":"2.0","method":"m","params":["x"]}`, "m", 1, ""},
		{"null params", `{"jsonrpc":"2.0","method":"m","params":null,"id":2}`, "m", 0, "2"},
		{"member order", `{"id":3,"params":[{"a":1}],"method":"m","jsonrpc":"2.0"}`, "m", 1, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, resp := Parse([]byte(tt.in))
			if resp != nil || req == nil {
				t.Fatalf("expected request, got response %+v", resp)
			}
			if req.Method != tt.method || len(req.Params) != tt.params {
				t.Fatalf("got %s", req)
			}
			if string(req.ID) != tt.id || req.IsNotification() != (tt.id == "") {
				t.Fatalf("got id %q", req.ID)
			}
		})
	}
}

func TestParseShapeErrors(t *testing.T) {
	inputs := []string{
		`{"jsonrpc":`,
		`not json`,
		`[{"jsonrpc":"2.0","method":"m","id":1}]`,
		`"2.0"`,
		`{"method":"m","id":1}`,
		`{"jsonrpc":2,"method":"m","id":1}`,
		`{"jsonrpc":"2.0","id":1}`,
		`{"jsonrpc":"2.0","method":5,"id":1}`,
		`{"jsonrpc":"2.0","method":"m","params":{"a":1},"id":1}`,
		`{"jsonrpc":"2.0","method":"m","id":{}}`,
		`{"jsonrpc":"2.0","method":"m","id":[1]}`,
		`{"jsonrpc":"2.0","method":"m","id":true}`,
	}
	for _, in := range inputs {
		req, resp := Parse([]byte(in))
		if req != nil || resp == nil {
			t.Fatalf("%s: expected a parse error response", in)
		}
		if resp.Error.Code != CodeParseError || resp.Error.Message != "Parse error" {
			t.Fatalf("%s: got %v", in, resp.Error)
		}
		if resp.Error.DataString() == "" {
			t.Fatalf("%s: parse error carries no explanation", in)
		}
		data, err := resp.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(string(data), `"id":null}`) {
			t.Fatalf("%s: got %s", in, data)
		}
	}
}

func TestParseVersion(t *testing.T) {
	req, resp := Parse([]byte(`{"jsonrpc":"1.0","method":"m","id":"q"}`))
	if req != nil || resp == nil {
		t.Fatal("expected an invalid request response")
	}
	data, err := resp.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	expectJSON(t, data, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request","data":"1.0"},"id":"q"}`)

	for _, in := range []string{`{"jsonrpc":"1.0","method":"m"}`, `{"jsonrpc":"1.0","method":"m","id":null}`} {
		if req, resp = Parse([]byte(in)); req != nil || resp != nil {
			t.Fatalf("%s: a notification with a bad version must be dropped", in)
		}
	}
}

func TestRequestMarshal(t *testing.T) {
	call, err := NewCall(7, "add", 1, "two", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := call.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"jsonrpc":"2.0","method":"add","params":[1,"two",null],"id":7}` {
		t.Fatalf("got %s", data)
	}

	n, err := NewNotification("ping")
	if err != nil {
		t.Fatal(err)
	}
	data, _ = n.MarshalJSON()
	if string(data) != `{"jsonrpc":"2.0","method":"ping","params":[]}` {
		t.Fatalf("got %s", data)
	}

	req, resp := Parse(data)
	if resp != nil || req.Method != "ping" || !req.IsNotification() {
		t.Fatalf("round trip failed: %v %v", req, resp)
	}
}
