package command

import (
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"arena/join","value":{"arena":"0xAB","player":"0xCD"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeArenaJoin {
		t.Fatalf("type = %q, want %q", env.Type, TypeArenaJoin)
	}
	var cmd ArenaJoinCmd
	if err := env.Decode(&cmd); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if cmd.Arena != "0xAB" || cmd.Player != "0xCD" {
		t.Fatalf("payload mismatch: %+v", cmd)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatal("garbage should fail")
	}
	if _, err := DecodeEnvelope([]byte(`{"value":{}}`)); err == nil {
		t.Fatal("missing type should fail")
	}
	env := Envelope{Type: TypeArenaCreate}
	var cmd ArenaCreateCmd
	if err := env.Decode(&cmd); err == nil {
		t.Fatal("missing value should fail")
	}
}
