package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"cursor":"abc"}}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	req, ok := msg.(*Request)
	if !ok {
		t.Fatalf("Expected *Request, got %T", msg)
	}
	if req.Method != "tools/list" {
		t.Errorf("Expected method tools/list, got %s", req.Method)
	}
	if req.ID != Int64ID(1) {
		t.Errorf("Expected id 1, got %s", req.ID)
	}
}

func TestDecodeRequestStringID(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","id":"req_7","method":"ping"}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	req, ok := msg.(*Request)
	if !ok {
		t.Fatalf("Expected *Request, got %T", msg)
	}
	if req.ID != StringID("req_7") {
		t.Errorf("Expected id req_7, got %s", req.ID)
	}
}

func TestDecodeNotification(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	if _, ok := msg.(*Notification); !ok {
		t.Fatalf("Expected *Notification, got %T", msg)
	}
}

func TestDecodeResponse(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","id":3,"result":{"ok":true}}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("Expected *Response, got %T", msg)
	}
	if resp.Error != nil {
		t.Errorf("Expected no error member, got %v", resp.Error)
	}
	if len(resp.Result) == 0 {
		t.Error("Expected result member to be populated")
	}
}

func TestDecodeErrorResponse(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"method not found"}}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("Expected *Response, got %T", msg)
	}
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("Expected method-not-found error, got %+v", resp.Error)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","_meta":{"x":1},"extra":"ignored"}`)

	if _, err := Decode(data); err != nil {
		t.Fatalf("Unknown top-level fields must be ignored, got error: %v", err)
	}
}

func TestDecodeRejections(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"invalid json", `{"jsonrpc":"2.0",`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"null request id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`},
		{"float request id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`},
		{"boolean id", `{"jsonrpc":"2.0","id":true,"method":"ping"}`},
		{"result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-32603,"message":"x"}}`},
		{"response without id", `{"jsonrpc":"2.0","result":{}}`},
		{"request with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
		{"empty object", `{"jsonrpc":"2.0"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatalf("Expected decode failure for %s", tc.data)
			}
			if _, ok := err.(*DecodeError); !ok {
				t.Errorf("Expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestDecodeNullIDRequestRejectedAsInvalid(t *testing.T) {
	// A null id must not reclassify the payload as a notification.
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":null,"method":"tools/call"}`))
	if err == nil {
		t.Fatalf("Expected decode failure, got %T", msg)
	}
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("Expected *DecodeError, got %T", err)
	}
	if de.Code != InvalidRequest {
		t.Errorf("Expected invalid request code %d, got %d", InvalidRequest, de.Code)
	}
}

func TestEncodeDecodeRequest(t *testing.T) {
	req, err := NewRequest(Int64ID(42), "resources/read", map[string]string{"uri": "file:///x"})
	if err != nil {
		t.Fatalf("NewRequest returned error: %v", err)
	}

	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	got, ok := msg.(*Request)
	if !ok {
		t.Fatalf("Expected *Request, got %T", msg)
	}
	if got.ID != req.ID || got.Method != req.Method {
		t.Errorf("Round trip mismatch: %+v vs %+v", got, req)
	}
}

func TestNewResponseNilResult(t *testing.T) {
	resp, err := NewResponse(Int64ID(1), nil)
	if err != nil {
		t.Fatalf("NewResponse returned error: %v", err)
	}

	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	// A success response must always carry the result member.
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if _, ok := env["result"]; !ok {
		t.Error("Expected result member on success response")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, id := range []RequestID{Int64ID(0), Int64ID(-3), StringID("x"), StringID("")} {
		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("Marshal returned error: %v", err)
		}
		var got RequestID
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal returned error: %v", err)
		}
		if got != id {
			t.Errorf("Round trip mismatch: %v vs %v", got, id)
		}
	}
}
