package frame

import (
	"encoding/json"
	"testing"
)

func TestStatusCodeUnmarshalsNumber(t *testing.T) {
	var s StatusCode
	if err := json.Unmarshal([]byte("200"), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != 200 {
		t.Fatalf("expected 200, got %d", s)
	}
}

func TestStatusCodeUnmarshalsNumericString(t *testing.T) {
	var s StatusCode
	if err := json.Unmarshal([]byte(`"404"`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != 404 {
		t.Fatalf("expected 404, got %d", s)
	}
}

func TestStatusCodeUnmarshalRejectsGarbage(t *testing.T) {
	var s StatusCode
	if err := json.Unmarshal([]byte(`"not-a-number"`), &s); err == nil {
		t.Fatalf("expected an error for a non-numeric string")
	}
}

func TestStatusCodeMarshalsAsNumber(t *testing.T) {
	s := StatusCode(503)
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != "503" {
		t.Fatalf("expected 503, got %s", out)
	}
}

func TestResponseStartPayloadRoundTripsThroughNumericString(t *testing.T) {
	raw := []byte(`{"status_code":"201","status":"Created","header":{"Content-Type":["text/plain"]}}`)
	var rs ResponseStartPayload
	if err := json.Unmarshal(raw, &rs); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rs.StatusCode != 201 {
		t.Fatalf("expected status 201, got %d", rs.StatusCode)
	}
	if rs.Header["Content-Type"][0] != "text/plain" {
		t.Fatalf("unexpected header: %+v", rs.Header)
	}
}
