package game

// Challenge is the round prompt, a tagged union: exactly one variant payload
// is set, matching the game type. Shared fields live in the envelope.
type Challenge struct {
	Round int `json:"round"`

	Claw       *ClawChallenge       `json:"claw,omitempty"`
	Prediction *PredictionChallenge `json:"prediction,omitempty"`
	Speed      *SpeedChallenge      `json:"speed,omitempty"`
	Blackjack  *BlackjackChallenge  `json:"blackjack,omitempty"`
}

// Move is a player's submission, a tagged union mirroring Challenge. The
// engine validates the variant against the game type once at the boundary;
// downstream code never re-inspects tags.
type Move struct {
	Claw       *ClawMove       `json:"claw,omitempty"`
	Prediction *PredictionMove `json:"prediction,omitempty"`
	Speed      *SpeedMove      `json:"speed,omitempty"`
	Blackjack  *BlackjackMove  `json:"blackjack,omitempty"`
}

// matches reports whether the move carries exactly the payload variant the
// game type expects.
func (m Move) matches(t Type) bool {
	set := 0
	if m.Claw != nil {
		set++
	}
	if m.Prediction != nil {
		set++
	}
	if m.Speed != nil {
		set++
	}
	if m.Blackjack != nil {
		set++
	}
	if set != 1 {
		return false
	}
	switch t {
	case TypeClaw:
		return m.Claw != nil
	case TypePrediction:
		return m.Prediction != nil
	case TypeSpeed:
		return m.Speed != nil
	case TypeBlackjack:
		return m.Blackjack != nil
	default:
		return false
	}
}
