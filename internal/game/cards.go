package game

// Card is a playing card, 0..51. Rank 2..14 (ace high), suit 0..3.
type Card uint8

func (c Card) Rank() uint8 { // 2..14
	return uint8(c%13) + 2
}

func (c Card) Suit() uint8 { // 0..3
	return uint8(c / 13)
}

func (c Card) String() string {
	r := c.Rank()
	var rch byte
	switch r {
	case 14:
		rch = 'A'
	case 13:
		rch = 'K'
	case 12:
		rch = 'Q'
	case 11:
		rch = 'J'
	case 10:
		rch = 'T'
	default:
		rch = byte('0' + r)
	}
	s := c.Suit()
	var sch byte
	switch s {
	case 0:
		sch = 'c'
	case 1:
		sch = 'd'
	case 2:
		sch = 'h'
	case 3:
		sch = 's'
	default:
		sch = '?'
	}
	return string([]byte{rch, sch})
}

// shuffledDeck deals a full 52-card deck in Fisher-Yates order driven by the
// stream, so the same seed always yields the same deck.
func shuffledDeck(st *stream) []Card {
	deck := make([]Card, 52)
	for i := 0; i < 52; i++ {
		deck[i] = Card(i)
	}
	for i := 51; i > 0; i-- {
		j := st.intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// handValue scores a blackjack hand. Face cards count 10; aces count 11,
// downgraded to 1 one at a time while the total busts.
func handValue(cards []Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		r := int(c.Rank())
		switch {
		case r == 14:
			total += 11
			aces++
		case r > 10:
			total += 10
		default:
			total += r
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}
