package demo

import (
	"context"
	"encoding/json"
	"testing"

	"get.pme.sh/wsjrpc/jrpc"
)

func invoke(t *testing.T, reg *jrpc.Registry, method string, args ...string) (string, *jrpc.Error) {
	t.Helper()
	b, ok := reg.Lookup(method)
	if !ok {
		t.Fatalf("method %q not registered", method)
	}
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw[i] = json.RawMessage(a)
	}
	res, err := b.Invoke(context.Background(), raw).Wait()
	return string(res), err
}

func TestMethods(t *testing.T) {
	reg := jrpc.NewRegistry()
	Register(reg)

	want := []string{"add", "echo", "fail", "greeting", "next_id", "sleep"}
	if names := reg.Names(); len(names) != len(want) {
		t.Fatalf("got %v", names)
	} else {
		for i := range want {
			if names[i] != want[i] {
				t.Fatalf("got %v, want %v", names, want)
			}
		}
	}

	tests := []struct {
		method string
		args   []string
		want   string
	}{
		{"greeting", []string{`"world"`}, `"Hello, world"`},
		{"next_id", nil, `1`},
		{"next_id", nil, `2`},
		{"add", []string{`40`, `2`}, `42`},
		{"sleep", []string{`1`}, `1`},
		{"echo", []string{`{"a":[1,2]}`}, `{"a":[1,2]}`},
	}
	for _, tt := range tests {
		res, err := invoke(t, reg, tt.method, tt.args...)
		if err != nil {
			t.Fatalf("%s: %v", tt.method, err)
		}
		if res != tt.want {
			t.Errorf("%s: got %s, want %s", tt.method, res, tt.want)
		}
	}
}

func TestFail(t *testing.T) {
	reg := jrpc.NewRegistry()
	Register(reg)

	_, err := invoke(t, reg, "fail", `-32042`, `"custom"`)
	if err == nil || err.Code != -32042 || err.Message != "custom" {
		t.Fatalf("got %v", err)
	}
	_, err = invoke(t, reg, "fail", `12`, `"outside"`)
	if err == nil || err.Code != jrpc.CodeServerErrorMax {
		t.Fatalf("got %v", err)
	}
	_, err = invoke(t, reg, "sleep", `-1`)
	if err == nil || err.Code != jrpc.CodeInvalidParams {
		t.Fatalf("got %v", err)
	}
}
