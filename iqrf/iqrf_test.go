package iqrf

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestPlaceholder(t *testing.T) {
	for _, test := range []struct {
		name string
		fn   func() ([]byte, error)
	}{
		{"enumerate", func() ([]byte, error) { return EnumerateRequest("3") }},
		{"removebond", func() ([]byte, error) { return RemoveBondRequest("3") }},
		{"ping", PingRequest},
	} {
		t.Run(test.name, func(t *testing.T) {
			raw, err := test.fn()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Contains(raw, []byte(MsgIDPlaceholder)) {
				t.Errorf("request missing correlation placeholder: %s", raw)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	raw := []byte(`{"msgId":"abc123","mType":"iqmeshNetwork_EnumerateDevice","data":{"status":0,"statusStr":"ok"}}`)
	r, err := ParseResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r.MsgID, "abc123"; have != want {
		t.Errorf("unexpected msgId: have: %v, want: %v", have, want)
	}
	if r.Err() != nil {
		t.Error("zero status should not be an error")
	}
	if r.InfoMissing() {
		t.Error("response should not report info missing")
	}
}

func TestParseResponseMalformed(t *testing.T) {
	if _, err := ParseResponse([]byte(`not json`)); err == nil {
		t.Error("expected parse error")
	}
	_, err := ParseResponse([]byte(`{"data":{"status":0}}`))
	if !errors.Is(err, ErrMissingMsgID) {
		t.Errorf("expected ErrMissingMsgID; got: %v", err)
	}
}

func TestClassify(t *testing.T) {
	r, err := ParseResponse([]byte(`{"msgId":"m1","data":{"status":1004,"statusStr":"info missing"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !r.InfoMissing() {
		t.Error("expected info missing classification")
	}

	r, err = ParseResponse([]byte(`{"msgId":"m2","data":{"status":5,"statusStr":"busy"}}`))
	if err != nil {
		t.Fatal(err)
	}
	var devErr *DeviceError
	if !errors.As(r.Err(), &devErr) {
		t.Fatal("expected a device error")
	}
	if have, want := devErr.StatusStr, "busy"; have != want {
		t.Errorf("unexpected statusStr: have: %v, want: %v", have, want)
	}
	if have, want := devErr.Status, 5; have != want {
		t.Errorf("unexpected status: have: %v, want: %v", have, want)
	}
}
