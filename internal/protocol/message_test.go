package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestParse_ValidMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			"offer with payload",
			`{"type":"OFFER","dst":"bob","payload":{"sdp":"v=0"}}`,
			Message{Type: TypeOffer, Dst: "bob"},
		},
		{
			"heartbeat",
			`{"type":"HEARTBEAT"}`,
			Message{Type: TypeHeartbeat},
		},
		{
			"leave",
			`{"type":"LEAVE"}`,
			Message{Type: TypeLeave},
		},
		{
			"candidate with src ignored later",
			`{"type":"CANDIDATE","src":"spoofed","dst":"carol"}`,
			Message{Type: TypeCandidate, Src: "spoofed", Dst: "carol"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Parse([]byte(tc.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if msg.Type != tc.want.Type {
				t.Errorf("Type = %q, want %q", msg.Type, tc.want.Type)
			}
			if msg.Dst != tc.want.Dst {
				t.Errorf("Dst = %q, want %q", msg.Dst, tc.want.Dst)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not json", "hello there"},
		{"truncated", `{"type":"OFF`},
		{"array", `["OFFER"]`},
		{"number", `42`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", tc.data)
			}
		})
	}
}

func TestParse_MissingType(t *testing.T) {
	_, err := Parse([]byte(`{"dst":"bob"}`))
	if !errors.Is(err, ErrMissingType) {
		t.Errorf("Parse() error = %v, want ErrMissingType", err)
	}
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"TELEPORT"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Parse() error = %v, want ErrUnknownType", err)
	}
}

func TestParse_PayloadPreservedVerbatim(t *testing.T) {
	raw := `{"type":"ANSWER","dst":"alice","payload":{"sdp":"v=0\r\no=- 42","nested":{"a":[1,2,3]}}}`
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []byte(`{"sdp":"v=0\r\no=- 42","nested":{"a":[1,2,3]}}`)
	if !bytes.Equal(msg.Payload, want) {
		t.Errorf("Payload = %s, want %s", msg.Payload, want)
	}
}

func TestMessageType_Valid(t *testing.T) {
	valid := []MessageType{
		TypeOpen, TypeError, TypeIDTaken, TypeInvalidKey, TypeExpire,
		TypeLeave, TypeHeartbeat, TypeOffer, TypeAnswer, TypeCandidate,
	}
	for _, mt := range valid {
		if !mt.Valid() {
			t.Errorf("%q.Valid() = false, want true", mt)
		}
	}

	invalid := []MessageType{"", "OPEN ", "open", "PING", "DATA"}
	for _, mt := range invalid {
		if mt.Valid() {
			t.Errorf("%q.Valid() = true, want false", mt)
		}
	}
}

func TestMessageType_IsAddressed(t *testing.T) {
	addressed := []MessageType{TypeOffer, TypeAnswer, TypeCandidate}
	for _, mt := range addressed {
		if !mt.IsAddressed() {
			t.Errorf("%q.IsAddressed() = false, want true", mt)
		}
	}

	unaddressed := []MessageType{
		TypeOpen, TypeError, TypeIDTaken, TypeInvalidKey,
		TypeExpire, TypeLeave, TypeHeartbeat,
	}
	for _, mt := range unaddressed {
		if mt.IsAddressed() {
			t.Errorf("%q.IsAddressed() = true, want false", mt)
		}
	}
}

func TestNotificationHelpers(t *testing.T) {
	tests := []struct {
		name     string
		msg      *Message
		wantType MessageType
		wantMsg  string
	}{
		{"invalid key", InvalidKey(), TypeInvalidKey, "invalid key provided"},
		{"id taken", IDTaken("alice"), TypeIDTaken, `ID "alice" is taken`},
		{"peer not found", PeerNotFound("carol"), TypeError, "Peer carol not found"},
		{"generic error", Error("server is full"), TypeError, "server is full"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.msg.Type != tc.wantType {
				t.Errorf("Type = %q, want %q", tc.msg.Type, tc.wantType)
			}
			var payload ErrorPayload
			if err := json.Unmarshal(tc.msg.Payload, &payload); err != nil {
				t.Fatalf("payload unmarshal: %v", err)
			}
			if payload.Msg != tc.wantMsg {
				t.Errorf("payload.Msg = %q, want %q", payload.Msg, tc.wantMsg)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	msg := Open("xyz")
	if msg.Type != TypeOpen {
		t.Errorf("Type = %q, want OPEN", msg.Type)
	}
	if msg.Src != "xyz" {
		t.Errorf("Src = %q, want xyz", msg.Src)
	}
}

func TestExpire(t *testing.T) {
	msg := Expire()
	if msg.Type != TypeExpire {
		t.Errorf("Type = %q, want EXPIRE", msg.Type)
	}
	if msg.Payload != nil {
		t.Errorf("Payload = %s, want none", msg.Payload)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	msg := &Message{
		Type:    TypeOffer,
		Src:     "alice",
		Dst:     "bob",
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	}

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Src != "alice" || got.Dst != "bob" || got.Type != TypeOffer {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !bytes.Equal(got.Payload, msg.Payload) {
		t.Errorf("Payload = %s, want %s", got.Payload, msg.Payload)
	}
}

func TestString(t *testing.T) {
	msg := &Message{Type: TypeOffer, Src: "alice", Dst: "bob"}
	if got := msg.String(); got != "OFFER alice->bob" {
		t.Errorf("String() = %q", got)
	}

	hb := &Message{Type: TypeHeartbeat}
	if got := hb.String(); got != "HEARTBEAT" {
		t.Errorf("String() = %q", got)
	}
}
