// Package command defines the JSON command surface the daemon accepts over
// HTTP. Commands are routed by type; payloads stay flat and explicit.
package command

import (
	"encoding/json"
	"fmt"
)

// Envelope is the v1 command container.
type Envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid command json: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing command type")
	}
	return env, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Value) == 0 {
		return fmt.Errorf("%s: missing value", e.Type)
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return fmt.Errorf("%s: invalid value: %w", e.Type, err)
	}
	return nil
}

// Command types.
const (
	TypeArenaCreate   = "arena/create"
	TypeArenaJoin     = "arena/join"
	TypeArenaMove     = "arena/move"
	TypeArenaFinalize = "arena/finalize"
)

// ---- Arena ----

// ArenaCreateCmd mirrors arena.Params with wire-friendly types: addresses
// as hex strings, amounts as decimal strings.
type ArenaCreateCmd struct {
	Name                 string `json:"name"`
	EntryFee             string `json:"entryFee"` // decimal wei
	MaxPlayers           uint32 `json:"maxPlayers"`
	ProtocolFeeBps       uint16 `json:"protocolFeeBps,omitempty"`
	Treasury             string `json:"treasury,omitempty"`
	RegistrationDeadline int64  `json:"registrationDeadline,omitempty"` // unix seconds
	GameType             string `json:"gameType"`
	Network              string `json:"network,omitempty"` // default testnet
	PayoutScheme         string `json:"payoutScheme,omitempty"`
}

type ArenaJoinCmd struct {
	Arena  string `json:"arena"`
	Player string `json:"player"`
}

// ArenaMoveCmd carries the game-specific payload opaquely; the engine
// validates the variant against the arena's game type.
type ArenaMoveCmd struct {
	Arena  string          `json:"arena"`
	Player string          `json:"player"`
	Move   json.RawMessage `json:"move"`
}

type ArenaFinalizeCmd struct {
	Arena string `json:"arena"`
}
