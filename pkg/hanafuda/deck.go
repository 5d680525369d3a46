package hanafuda

import (
	"math/rand"
)

// NewDeck returns the 48 card deck shuffled with the provided RNG. Passing
// a seeded *rand.Rand makes deals reproducible, which the round tests and
// the game log replay rely on.
func NewDeck(rng *rand.Rand) []Card {
	deck := make([]Card, len(AllCards))
	copy(deck, AllCards)
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}
